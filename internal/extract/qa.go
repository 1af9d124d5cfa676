package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var questionMarker = regexp.MustCompile(`\d+\.\s*Q:`)

// QAPairs extracts up to DefaultQuestionCount pairs from text.
func QAPairs(text string) []QAPair {
	pairs, _ := ParseQAPairs(text, DefaultQuestionCount)
	return pairs
}

// QAPairsN extracts up to limit pairs. A limit <= 0 keeps every pair found.
func QAPairsN(text string, limit int) []QAPair {
	pairs, _ := ParseQAPairs(text, limit)
	return pairs
}

// ParseQAPairs is QAPairsN that also reports which convention matched.
// Fewer pairs than limit are returned as-is, without padding.
func ParseQAPairs(text string, limit int) ([]QAPair, Format) {
	if body, ok := leadingJSON(text); ok {
		if pairs := jsonQAPairs(body, limit); len(pairs) > 0 {
			return pairs, FormatJSON
		}
	}
	if pairs := labelledQAPairs(text, limit); len(pairs) > 0 {
		return pairs, FormatLabelled
	}
	if body, ok := fencedJSON(text); ok {
		if pairs := jsonQAPairs(body, limit); len(pairs) > 0 {
			return pairs, FormatJSON
		}
	}
	return nil, FormatNone
}

// labelledQAPairs scans for "<n>. Q:" markers. Each marker's segment runs to the
// next marker (or end of text) and is split at its first "A:".
func labelledQAPairs(text string, limit int) []QAPair {
	marks := questionMarker.FindAllStringIndex(text, -1)
	var pairs []QAPair
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		q, a, ok := strings.Cut(text[m[1]:end], "A:")
		if !ok {
			continue
		}
		pairs = append(pairs, QAPair{
			Question: strings.TrimSpace(q),
			Answer:   strings.TrimSpace(a),
		})
		if limit > 0 && len(pairs) == limit {
			break
		}
	}
	return pairs
}

type jsonQA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func jsonQAPairs(body string, limit int) []QAPair {
	var raw json.RawMessage
	if !decodeJSON(body, &raw) {
		return nil
	}
	var items []jsonQA
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Questions []jsonQA `json:"questions"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil
		}
		items = wrapped.Questions
	}
	var pairs []QAPair
	for _, it := range items {
		if strings.TrimSpace(it.Question) == "" {
			continue
		}
		pairs = append(pairs, QAPair{
			Question: strings.TrimSpace(it.Question),
			Answer:   strings.TrimSpace(it.Answer),
		})
		if limit > 0 && len(pairs) == limit {
			break
		}
	}
	return pairs
}
