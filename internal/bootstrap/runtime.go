package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/tokligence/docchat/internal/config"
	"github.com/tokligence/docchat/internal/modelclient"
	"github.com/tokligence/docchat/internal/modelclient/loopback"
	"github.com/tokligence/docchat/internal/store"
	"github.com/tokligence/docchat/internal/store/async"
	storemongo "github.com/tokligence/docchat/internal/store/mongo"
	storepg "github.com/tokligence/docchat/internal/store/postgres"
	storesqlite "github.com/tokligence/docchat/internal/store/sqlite"
)

// OpenStore opens the configured store driver and, when enabled, wraps it
// with asynchronous message writes.
func OpenStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err = storesqlite.New(cfg.StoreDSN)
	case config.DriverPostgres:
		st, err = storepg.New(cfg.StoreDSN, storepg.PoolConfig{
			MaxOpen:         cfg.PostgresMaxOpenConns,
			MaxIdle:         cfg.PostgresMaxIdleConns,
			LifetimeMinutes: cfg.PostgresConnMaxLifetime,
			IdleTimeMinutes: cfg.PostgresConnMaxIdleTime,
		})
	case config.DriverMongo:
		st, err = storemongo.New(ctx, cfg.StoreDSN, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if !cfg.AsyncEnabled {
		return st, nil
	}
	return async.New(st, async.Config{
		BatchSize:     cfg.AsyncBatchSize,
		FlushInterval: cfg.AsyncFlushInterval,
		NumWorkers:    cfg.AsyncWorkers,
		Logger:        logger,
	}), nil
}

// Model is a model client together with the in-process loopback server
// backing it, if any.
type Model struct {
	*modelclient.Client
	loopback *http.Server
}

// Close stops the loopback server. It is a no-op for remote backends.
func (m *Model) Close() error {
	if m == nil || m.loopback == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.loopback.Shutdown(ctx)
}

// OpenModel builds the client for the configured backend. The loopback
// backend serves a local echo model on an ephemeral port.
func OpenModel(cfg config.Config, logger *log.Logger) (*Model, error) {
	mcfg := modelclient.Config{
		BaseURL:        cfg.ModelBaseURL,
		Model:          cfg.Model,
		HistoryTurns:   cfg.HistoryTurns,
		RequestTimeout: cfg.ModelTimeout,
	}
	m := &Model{}
	if cfg.ModelBackend == config.BackendLoopback {
		l, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("listen for loopback model: %w", err)
		}
		m.loopback = &http.Server{Handler: loopback.New(nil), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := m.loopback.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) && logger != nil {
				logger.Printf("loopback model server: %v", err)
			}
		}()
		mcfg.BaseURL = "http://" + l.Addr().String()
		mcfg.Model = loopback.ModelName
		if logger != nil {
			logger.Printf("loopback model backend listening on %s", mcfg.BaseURL)
		}
	}
	client, err := modelclient.New(mcfg)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	m.Client = client
	return m, nil
}
