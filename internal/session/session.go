// Package session keeps the per-document interaction state of the chat UI:
// which mode is active, the challenge questions and whether a model call is in
// flight. States are immutable values; every change produces a new State.
package session

import (
	"sync"

	"github.com/tokligence/docchat/internal/extract"
)

// Mode is the active interaction mode of a document.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeAsk       Mode = "ask"
	ModeChallenge Mode = "challenge"
)

// State is a snapshot of one document's session.
type State struct {
	Preview          string           `json:"preview"`
	SummaryGenerated bool             `json:"summary_generated"`
	ChatStarted      bool             `json:"chat_started"`
	Mode             Mode             `json:"mode"`
	Challenge        []extract.QAPair `json:"challenge"`
	// Current is the index of the challenge question being answered.
	Current int  `json:"current"`
	Busy    bool `json:"busy"`
}

// New returns the initial state for a freshly uploaded document.
func New(preview string) State {
	return State{Preview: preview, Mode: ModeNone}
}

// WithMode switches mode and marks the chat as started.
func (s State) WithMode(m Mode) State {
	s.Mode = m
	s.ChatStarted = true
	return s
}

// WithBusy sets the in-flight flag.
func (s State) WithBusy(busy bool) State {
	s.Busy = busy
	return s
}

// WithSummary records that the summary has been generated.
func (s State) WithSummary() State {
	s.SummaryGenerated = true
	s.ChatStarted = true
	return s
}

// WithChallenge replaces the challenge questions and restarts at the first one.
func (s State) WithChallenge(pairs []extract.QAPair) State {
	s.Challenge = clonePairs(pairs)
	s.Current = 0
	s.Mode = ModeChallenge
	s.ChatStarted = true
	return s
}

// WithEvaluation records the user's answer and its grade for question i and
// advances Current past it.
func (s State) WithEvaluation(i int, answer string, eval *extract.Evaluation) State {
	if i < 0 || i >= len(s.Challenge) {
		return s
	}
	s.Challenge = clonePairs(s.Challenge)
	s.Challenge[i].UserAnswer = answer
	s.Challenge[i].Evaluation = cloneEvaluation(eval)
	if s.Current <= i {
		s.Current = i + 1
	}
	return s
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Challenge = clonePairs(s.Challenge)
	return s
}

func clonePairs(pairs []extract.QAPair) []extract.QAPair {
	if pairs == nil {
		return nil
	}
	out := make([]extract.QAPair, len(pairs))
	for i, p := range pairs {
		p.Evaluation = cloneEvaluation(p.Evaluation)
		out[i] = p
	}
	return out
}

func cloneEvaluation(e *extract.Evaluation) *extract.Evaluation {
	if e == nil {
		return nil
	}
	c := *e
	if e.Score != nil {
		score := *e.Score
		c.Score = &score
	}
	return &c
}

// Store holds the session state of every open document.
type Store struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{states: make(map[string]State)}
}

// Get returns a copy of the state for id.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return State{}, false
	}
	return st.Clone(), true
}

// Put replaces the state for id.
func (s *Store) Put(id string, st State) {
	s.mu.Lock()
	s.states[id] = st.Clone()
	s.mu.Unlock()
}

// Update applies fn to the current state of id and stores the result
// atomically. A missing id starts from New(""). The stored state is returned.
func (s *Store) Update(id string, fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		st = New("")
	}
	next := fn(st.Clone()).Clone()
	s.states[id] = next
	return next.Clone()
}

// TryAcquire marks id busy unless a call is already in flight. It reports
// whether the caller now owns the busy flag.
func (s *Store) TryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		st = New("")
	}
	if st.Busy {
		return false
	}
	s.states[id] = st.WithBusy(true)
	return true
}

// Release clears the busy flag of id.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		s.states[id] = st.WithBusy(false)
	}
}

// Delete forgets id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
}

// Len returns the number of tracked documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
