// Package hooks fans document lifecycle events out to registered handlers,
// such as an operator script that indexes uploads elsewhere.
package hooks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a document lifecycle transition.
type EventType string

const (
	EventDocumentUploaded EventType = "docchat.document.uploaded"
	EventDocumentDeleted  EventType = "docchat.document.deleted"
	EventSummaryReady     EventType = "docchat.summary.ready"
	EventQuestionAnswered EventType = "docchat.question.answered"
	EventChallengeIssued  EventType = "docchat.challenge.issued"
	EventAnswerEvaluated  EventType = "docchat.answer.evaluated"
)

// Event is the payload handed to every handler.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	DocumentID string         `json:"document_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(typ EventType, documentID string, metadata map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		DocumentID: documentID,
		Metadata:   metadata,
	}
}

// Handler reacts to an Event.
type Handler func(context.Context, Event) error

// Dispatcher delivers events to handlers in registration order. A nil
// *Dispatcher drops every event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Emit runs every handler and joins their errors.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
