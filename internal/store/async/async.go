package async

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store wraps a store.Store with asynchronous batch writes of chat messages.
// Messages of one document always go through the same worker, so their order
// is preserved. Reads of a document's history wait for its pending messages.
type Store struct {
	underlying    store.Store
	queues        []chan item
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	closeOnce     sync.Once
	logger        *log.Logger

	// closeMu orders queue sends before Close stops the workers.
	closeMu sync.RWMutex
	closed  bool
}

type item struct {
	msg    store.Message
	synced chan struct{} // set for sync markers
}

// Config configures the async store behavior.
type Config struct {
	BatchSize     int           // Maximum messages per batch (default: 50)
	FlushInterval time.Duration // Maximum time between flushes (default: 500ms)
	ChannelBuffer int           // Per-worker buffer size (default: 1000)
	NumWorkers    int           // Number of parallel batch writers (default: 1)
	Logger        *log.Logger   // Optional logger for diagnostics
}

// New wraps an existing store with async batch writing.
func New(underlying store.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}

	s := &Store{
		underlying:    underlying,
		queues:        make([]chan item, cfg.NumWorkers),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}
	for i := range s.queues {
		s.queues[i] = make(chan item, cfg.ChannelBuffer)
		s.wg.Add(1)
		go s.batchWriter(i, s.queues[i])
	}

	if s.logger != nil {
		s.logger.Printf("[async-store] started %d worker(s), batch_size=%d, flush_interval=%v, buffer=%d",
			cfg.NumWorkers, cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer)
	}
	return s
}

func (s *Store) batchWriter(workerID int, queue chan item) {
	defer s.wg.Done()

	batch := make([]store.Message, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		ctx := context.Background()
		successCount := 0
		for _, msg := range batch {
			if err := s.underlying.AppendMessage(ctx, msg); err != nil {
				if s.logger != nil {
					s.logger.Printf("[async-store] worker-%d ERROR writing message %s for document %s: %v", workerID, msg.ID, msg.DocumentID, err)
				}
				continue
			}
			successCount++
		}
		if s.logger != nil {
			s.logger.Printf("[async-store] worker-%d flushed %d/%d messages in %v", workerID, successCount, len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	handle := func(it item) {
		if it.synced != nil {
			flush()
			close(it.synced)
			return
		}
		batch = append(batch, it.msg)
		if len(batch) >= s.batchSize {
			flush()
		}
	}

	for {
		select {
		case it := <-queue:
			handle(it)

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// drain what is already queued
			for {
				select {
				case it := <-queue:
					handle(it)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Store) queueFor(documentID string) chan item {
	if len(s.queues) == 1 {
		return s.queues[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))
	return s.queues[h.Sum32()%uint32(len(s.queues))]
}

// AppendMessage validates msg and queues it for writing. When the queue is
// full the message is written synchronously instead of being dropped.
func (s *Store) AppendMessage(ctx context.Context, msg store.Message) error {
	msg, err := store.PrepareMessage(msg)
	if err != nil {
		return err
	}
	s.closeMu.RLock()
	if !s.closed {
		select {
		case s.queueFor(msg.DocumentID) <- item{msg: msg}:
			s.closeMu.RUnlock()
			return nil
		default:
			if s.logger != nil {
				s.logger.Printf("[async-store] WARNING: queue full, writing message %s synchronously", msg.ID)
			}
		}
	}
	s.closeMu.RUnlock()
	return s.underlying.AppendMessage(ctx, msg)
}

// Sync blocks until every message queued so far for documentID is written.
func (s *Store) Sync(ctx context.Context, documentID string) error {
	done := make(chan struct{})
	select {
	case <-s.stopChan:
		return nil
	case s.queueFor(documentID) <- item{synced: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListMessages waits for pending writes of the document and then reads.
func (s *Store) ListMessages(ctx context.Context, documentID string, limit int) ([]store.Message, error) {
	if err := s.Sync(ctx, documentID); err != nil {
		return nil, err
	}
	return s.underlying.ListMessages(ctx, documentID, limit)
}

// DeleteDocument waits for pending writes of the document and then deletes it.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.Sync(ctx, id); err != nil {
		return err
	}
	return s.underlying.DeleteDocument(ctx, id)
}

func (s *Store) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	return s.underlying.CreateDocument(ctx, doc)
}

func (s *Store) GetDocument(ctx context.Context, id string) (store.Document, error) {
	return s.underlying.GetDocument(ctx, id)
}

func (s *Store) ListDocuments(ctx context.Context) ([]store.Document, error) {
	return s.underlying.ListDocuments(ctx)
}

func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	return s.underlying.SetSummary(ctx, id, summary)
}

func (s *Store) SetChallenge(ctx context.Context, id string, pairs []extract.QAPair) error {
	return s.underlying.SetChallenge(ctx, id, pairs)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.underlying.Ping(ctx)
}

// Close flushes remaining messages and closes the underlying store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.stopChan)
		s.closeMu.Unlock()
		s.wg.Wait()
	})
	return s.underlying.Close()
}
