package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tokligence/docchat/internal/extract"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: not found")

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Document is an uploaded file together with everything generated from it.
type Document struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	Text      string           `json:"text,omitempty"`
	Preview   string           `json:"preview"`
	Summary   string           `json:"summary,omitempty"`
	Challenge []extract.QAPair `json:"challenge,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Message is one entry of the chat history of a document.
type Message struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Sender     Sender    `json:"sender"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines persistence behaviour for documents and their chat history.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	// ListDocuments returns every document newest first, without Text.
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument removes a document and its messages.
	DeleteDocument(ctx context.Context, id string) error
	SetSummary(ctx context.Context, id, summary string) error
	SetChallenge(ctx context.Context, id string, pairs []extract.QAPair) error
	AppendMessage(ctx context.Context, msg Message) error
	// ListMessages returns the most recent limit messages oldest first. A
	// limit <= 0 returns the full history.
	ListMessages(ctx context.Context, documentID string, limit int) ([]Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewID returns a fresh identifier for a document or message.
func NewID() string {
	return uuid.NewString()
}

// PrepareDocument validates doc and fills in its ID and timestamps.
func PrepareDocument(doc Document) (Document, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return Document{}, errors.New("store: document name required")
	}
	if doc.ID == "" {
		doc.ID = NewID()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	return doc, nil
}

// PrepareMessage validates msg and fills in its ID and timestamp.
func PrepareMessage(msg Message) (Message, error) {
	if msg.DocumentID == "" {
		return Message{}, errors.New("store: message requires document id")
	}
	if msg.Sender != SenderUser && msg.Sender != SenderAI {
		return Message{}, fmt.Errorf("store: invalid sender %q", msg.Sender)
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg, nil
}

// EncodeChallenge serialises challenge pairs for column storage. An empty set
// encodes as "".
func EncodeChallenge(pairs []extract.QAPair) (string, error) {
	if len(pairs) == 0 {
		return "", nil
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("store: encode challenge: %w", err)
	}
	return string(data), nil
}

// DecodeChallenge reverses EncodeChallenge.
func DecodeChallenge(raw string) ([]extract.QAPair, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var pairs []extract.QAPair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("store: decode challenge: %w", err)
	}
	return pairs, nil
}
