package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tokligence/docchat/internal/document"
	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/health"
	"github.com/tokligence/docchat/internal/hooks"
	"github.com/tokligence/docchat/internal/httpserver/protocol"
	"github.com/tokligence/docchat/internal/logging"
	"github.com/tokligence/docchat/internal/metrics"
	"github.com/tokligence/docchat/internal/modelclient"
	"github.com/tokligence/docchat/internal/prompts"
	"github.com/tokligence/docchat/internal/ratelimit"
	"github.com/tokligence/docchat/internal/session"
	"github.com/tokligence/docchat/internal/store"
	"github.com/tokligence/docchat/internal/stream"
)

// ModelClient is the part of *modelclient.Client the server depends on.
type ModelClient interface {
	Stream(ctx context.Context, req modelclient.Request, onContent func(string)) (stream.Result, error)
	Heartbeat(ctx context.Context) error
	Models(ctx context.Context) ([]modelclient.ModelInfo, error)
	Model() string
}

// Options wires the server's collaborators. Store and Model are required.
type Options struct {
	Store    store.Store
	Model    ModelClient
	Prompts  *prompts.Builder
	Sessions *session.Store
	Metrics  *metrics.Collector
	Health   *health.Checker
	Logger   *logging.Leveled
	// Limiter throttles model calls per client; nil disables throttling.
	Limiter *ratelimit.Limiter
	// Hooks receives document events once a response is complete.
	Hooks *hooks.Dispatcher

	ChallengeCount int
	PreviewWords   int
	// HistoryTurns is how many stored messages are loaded for an ask.
	HistoryTurns   int
	MaxUploadBytes int64
	CORSOrigins    []string
}

// Server exposes the document chat REST and streaming API.
type Server struct {
	store    store.Store
	model    ModelClient
	prompts  *prompts.Builder
	sessions *session.Store
	metrics  *metrics.Collector
	health   *health.Checker
	logger   *logging.Leveled
	limiter  *ratelimit.Limiter
	hooks    *hooks.Dispatcher

	challengeCount int
	previewWords   int
	historyTurns   int
	maxUploadBytes int64
	corsOrigins    []string

	endpoints []protocol.Endpoint
}

const (
	defaultMaxUploadBytes = 20 << 20
	defaultHistoryTurns   = modelclient.DefaultHistoryTurns
)

// New builds a Server, filling unset collaborators with defaults.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("httpserver: store is required")
	}
	if opts.Model == nil {
		return nil, errors.New("httpserver: model client is required")
	}
	s := &Server{
		store:          opts.Store,
		model:          opts.Model,
		prompts:        opts.Prompts,
		sessions:       opts.Sessions,
		metrics:        opts.Metrics,
		health:         opts.Health,
		logger:         opts.Logger,
		limiter:        opts.Limiter,
		hooks:          opts.Hooks,
		challengeCount: opts.ChallengeCount,
		previewWords:   opts.PreviewWords,
		historyTurns:   opts.HistoryTurns,
		maxUploadBytes: opts.MaxUploadBytes,
		corsOrigins:    opts.CORSOrigins,
	}
	if s.prompts == nil {
		b, err := prompts.New(prompts.StyleLabelled)
		if err != nil {
			return nil, err
		}
		s.prompts = b
	}
	if s.sessions == nil {
		s.sessions = session.NewStore()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.health == nil {
		s.health = health.New(health.Config{Store: s.store, Model: s.model})
	}
	if s.challengeCount <= 0 {
		s.challengeCount = extract.DefaultQuestionCount
	}
	if s.previewWords <= 0 {
		s.previewWords = document.DefaultPreviewWords
	}
	if s.historyTurns == 0 {
		s.historyTurns = defaultHistoryTurns
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	s.endpoints = []protocol.Endpoint{
		newHealthEndpoint(s),
		newDocumentsEndpoint(s),
		newChatEndpoint(s),
		newOpsEndpoint(s),
	}
	return s, nil
}

// Metrics exposes the collector so the daemon can log a final snapshot.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Router returns the HTTP handler serving every endpoint.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	for _, ep := range s.endpoints {
		for _, route := range ep.Routes() {
			r.Method(route.Method, route.Path, s.instrument(route.Method+" "+route.Path, route.Handler))
		}
		s.logger.Debugf("registered endpoint %s", ep.Name())
	}
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	return r
}

// instrument records request count, latency, in-flight and error metrics
// under the route pattern.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.RecordRequestStart(route)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.metrics.RecordRequestEnd(route)
			s.metrics.RecordRequest(route, time.Since(start))
			if ww.Status() >= http.StatusBadRequest {
				s.metrics.RecordError(route)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// HandleHealth reports store and model server health. An unhealthy store
// answers 503 so load balancers stop routing here.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	code := http.StatusOK
	if status.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, status)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("%d: %v", status, err)
	} else {
		s.logger.Debugf("%d: %v", status, err)
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

// emit publishes a document event. Handler failures are only logged.
func (s *Server) emit(ctx context.Context, typ hooks.EventType, docID string, metadata map[string]any) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.Emit(context.WithoutCancel(ctx), hooks.NewEvent(typ, docID, metadata)); err != nil {
		s.logger.Warnf("hook %s %s: %v", typ, docID, err)
	}
}

// storeStatus maps store errors to HTTP statuses.
func storeStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
