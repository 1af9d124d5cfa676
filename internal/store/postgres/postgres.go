package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// PoolConfig tunes the connection pool. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpen         int
	MaxIdle         int
	LifetimeMinutes int
	IdleTimeMinutes int
}

// New opens a PostgreSQL-backed store using the provided DSN and connection pool settings.
func New(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.LifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.LifetimeMinutes) * time.Minute)
	}
	if pool.IdleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(pool.IdleTimeMinutes) * time.Minute)
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
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	body TEXT NOT NULL,
	preview TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	challenge JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	sender TEXT NOT NULL CHECK(sender IN ('user','ai')),
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
	challenge, err := challengeArg(doc.Challenge)
	if err != nil {
		return store.Document{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents(id, name, kind, body, preview, summary, challenge, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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
SELECT id, name, kind, body, preview, summary, COALESCE(challenge::text, ''), created_at, updated_at
FROM documents
WHERE id = $1`, id)
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

// DeleteDocument removes a document; its messages go with it via ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.update(ctx, `DELETE FROM documents WHERE id = $1`, id)
}

// SetSummary stores the generated summary of a document.
func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	return s.update(ctx, `UPDATE documents SET summary = $1, updated_at = $2 WHERE id = $3`, summary, time.Now().UTC(), id)
}

// SetChallenge stores the challenge questions of a document.
func (s *Store) SetChallenge(ctx context.Context, id string, pairs []extract.QAPair) error {
	challenge, err := challengeArg(pairs)
	if err != nil {
		return err
	}
	return s.update(ctx, `UPDATE documents SET challenge = $1, updated_at = $2 WHERE id = $3`, challenge, time.Now().UTC(), id)
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
SELECT $1, $2, $3, $4, $5
WHERE EXISTS (SELECT 1 FROM documents WHERE id = $2)`,
		msg.ID, msg.DocumentID, string(msg.Sender), msg.Text, msg.CreatedAt,
	)
}

// ListMessages returns the latest messages of a document, oldest first.
func (s *Store) ListMessages(ctx context.Context, documentID string, limit int) ([]store.Message, error) {
	// LIMIT NULL means no limit
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, sender, body, created_at FROM (
	SELECT seq, id, document_id, sender, body, created_at
	FROM messages
	WHERE document_id = $1
	ORDER BY seq DESC
	LIMIT $2
) recent ORDER BY seq ASC`, documentID, lim)
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

// challengeArg maps an empty challenge to SQL NULL.
func challengeArg(pairs []extract.QAPair) (any, error) {
	raw, err := store.EncodeChallenge(pairs)
	if err != nil || raw == "" {
		return nil, err
	}
	return raw, nil
}
