package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	// busy_timeout is per connection, so it goes in the DSN
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	body TEXT NOT NULL,
	preview TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	challenge TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	sender TEXT NOT NULL CHECK(sender IN ('user','ai')),
	body TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_document_seq ON messages(document_id, seq);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateDocument inserts a new document.
func (s *Store) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	doc, err := store.PrepareDocument(doc)
	if err != nil {
		return store.Document{}, err
	}
	challenge, err := store.EncodeChallenge(doc.Challenge)
	if err != nil {
		return store.Document{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents(id, name, kind, body, preview, summary, challenge, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Kind, doc.Text, doc.Preview, doc.Summary, challenge, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return store.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(ctx context.Context, id string) (store.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, kind, body, preview, summary, challenge, created_at, updated_at
FROM documents
WHERE id = ?`, id)
	var doc store.Document
	var challenge string
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Kind, &doc.Text, &doc.Preview, &doc.Summary, &challenge, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	pairs, err := store.DecodeChallenge(challenge)
	if err != nil {
		return store.Document{}, err
	}
	doc.Challenge = pairs
	return doc, nil
}

// ListDocuments returns all documents newest first, without their text.
func (s *Store) ListDocuments(ctx context.Context) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, kind, preview, summary, created_at, updated_at
FROM documents
ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.Kind, &d.Preview, &d.Summary, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document together with its chat history.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE document_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetSummary stores the generated summary of a document.
func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	return s.update(ctx, `UPDATE documents SET summary = ?, updated_at = ? WHERE id = ?`, summary, time.Now().UTC(), id)
}

// SetChallenge stores the challenge questions of a document.
func (s *Store) SetChallenge(ctx context.Context, id string, pairs []extract.QAPair) error {
	challenge, err := store.EncodeChallenge(pairs)
	if err != nil {
		return err
	}
	return s.update(ctx, `UPDATE documents SET challenge = ?, updated_at = ? WHERE id = ?`, challenge, time.Now().UTC(), id)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessage adds a message to the history of an existing document.
func (s *Store) AppendMessage(ctx context.Context, msg store.Message) error {
	msg, err := store.PrepareMessage(msg)
	if err != nil {
		return err
	}
	return s.update(ctx, `
INSERT INTO messages(id, document_id, sender, body, created_at)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM documents WHERE id = ?)`,
		msg.ID, msg.DocumentID, string(msg.Sender), msg.Text, msg.CreatedAt, msg.DocumentID,
	)
}

// ListMessages returns the latest messages of a document, oldest first.
func (s *Store) ListMessages(ctx context.Context, documentID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, sender, body, created_at FROM (
	SELECT seq, id, document_id, sender, body, created_at
	FROM messages
	WHERE document_id = ?
	ORDER BY seq DESC
	LIMIT ?
) ORDER BY seq ASC`, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.DocumentID, &sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = store.Sender(sender)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
