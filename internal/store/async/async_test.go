package async

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tokligence/docchat/internal/store"
	"github.com/tokligence/docchat/internal/store/sqlite"
	"github.com/tokligence/docchat/internal/store/storetest"
)

func newSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "docchat.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	s := New(newSQLite(t), Config{FlushInterval: time.Hour, NumWorkers: 3})
	t.Cleanup(func() { _ = s.Close() })
	storetest.Run(t, s)
}

func TestCloseDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.db")
	underlying, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	ctx := context.Background()
	doc, err := underlying.CreateDocument(ctx, store.Document{Name: "a.txt", Kind: "txt", Text: "x"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	s := New(underlying, Config{BatchSize: 1000, FlushInterval: time.Hour})
	for i := 0; i < 20; i++ {
		if err := s.AppendMessage(ctx, store.Message{DocumentID: doc.ID, Sender: store.SenderUser, Text: fmt.Sprint(i)}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	msgs, err := reopened.ListMessages(ctx, doc.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 drained messages, got %d", len(msgs))
	}
	if msgs[0].Text != "0" || msgs[19].Text != "19" {
		t.Fatalf("messages out of order: first=%q last=%q", msgs[0].Text, msgs[19].Text)
	}
}

func TestFailedWritesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	s := New(newSQLite(t), Config{FlushInterval: time.Hour, Logger: log.New(&buf, "", 0)})
	defer s.Close()

	ctx := context.Background()
	if err := s.AppendMessage(ctx, store.Message{DocumentID: "missing", Sender: store.SenderAI, Text: "lost"}); err != nil {
		t.Fatalf("AppendMessage should queue, got %v", err)
	}
	if err := s.Sync(ctx, "missing"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR writing message") {
		t.Fatalf("expected write failure to be logged, got %q", buf.String())
	}
}

func TestFullQueueWritesThrough(t *testing.T) {
	underlying := newSQLite(t)
	ctx := context.Background()
	doc, err := underlying.CreateDocument(ctx, store.Document{Name: "a.txt", Kind: "txt", Text: "x"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	s := New(underlying, Config{BatchSize: 1000, FlushInterval: time.Hour, ChannelBuffer: 1})
	defer s.Close()
	for i := 0; i < 10; i++ {
		if err := s.AppendMessage(ctx, store.Message{DocumentID: doc.ID, Sender: store.SenderUser, Text: fmt.Sprint(i)}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	msgs, err := s.ListMessages(ctx, doc.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
}

// countingStore counts written messages and stays open after Close so writes
// that fall through after shutdown still land.
type countingStore struct {
	*sqlite.Store
	written atomic.Int64
}

func (c *countingStore) AppendMessage(ctx context.Context, msg store.Message) error {
	if err := c.Store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	c.written.Add(1)
	return nil
}

func (c *countingStore) Close() error { return nil }

func TestAppendRacingCloseLosesNothing(t *testing.T) {
	base := newSQLite(t)
	defer base.Close()
	ctx := context.Background()
	doc, err := base.CreateDocument(ctx, store.Document{Name: "a.txt", Kind: "txt", Text: "x"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	for round := 0; round < 20; round++ {
		underlying := &countingStore{Store: base}
		s := New(underlying, Config{BatchSize: 1000, FlushInterval: time.Hour, NumWorkers: 2})

		var (
			accepted atomic.Int64
			wg       sync.WaitGroup
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					err := s.AppendMessage(ctx, store.Message{DocumentID: doc.ID, Sender: store.SenderAI, Text: fmt.Sprint(i)})
					if err == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		wg.Wait()

		if got, want := underlying.written.Load(), accepted.Load(); got != want {
			t.Fatalf("round %d: %d messages accepted but %d written", round, want, got)
		}
	}
}
