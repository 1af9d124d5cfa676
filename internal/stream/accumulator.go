package stream

import "strings"

// Accumulator collects the fragments of one logical response.
type Accumulator struct {
	b strings.Builder
}

// Append adds a fragment. Its signature matches Parser.OnContent.
func (a *Accumulator) Append(fragment string) {
	a.b.WriteString(fragment)
}

func (a *Accumulator) String() string {
	return a.b.String()
}

func (a *Accumulator) Len() int {
	return a.b.Len()
}

// Tee returns a sink that forwards each fragment to every non-nil sink in order.
func Tee(sinks ...func(string)) func(string) {
	return func(fragment string) {
		for _, sink := range sinks {
			if sink != nil {
				sink(fragment)
			}
		}
	}
}
