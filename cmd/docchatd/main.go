package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tokligence/docchat/internal/bootstrap"
	"github.com/tokligence/docchat/internal/config"
	"github.com/tokligence/docchat/internal/health"
	"github.com/tokligence/docchat/internal/hooks"
	"github.com/tokligence/docchat/internal/httpserver"
	"github.com/tokligence/docchat/internal/logging"
	"github.com/tokligence/docchat/internal/metrics"
	"github.com/tokligence/docchat/internal/prompts"
	"github.com/tokligence/docchat/internal/ratelimit"
	"github.com/tokligence/docchat/internal/session"
	"github.com/tokligence/docchat/internal/version"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix("[docchatd] ")
	logTarget := strings.TrimSpace(cfg.LogFile)
	if logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, logging.DefaultMaxBytes, cfg.LogRetentionDays)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		defer rot.Close()
	}
	level := logging.ParseLevel(cfg.LogLevel)
	log.Printf("docchatd %s env=%s store=%s model_backend=%s model=%s", version.FullInfo(), cfg.Environment, cfg.StoreDriver, cfg.ModelBackend, cfg.Model)

	ctx := context.Background()
	st, err := bootstrap.OpenStore(ctx, cfg, log.New(log.Writer(), "[docchatd/store] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	model, err := bootstrap.OpenModel(cfg, log.Default())
	if err != nil {
		log.Fatalf("init model client: %v", err)
	}
	defer model.Close()

	builder, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		log.Fatalf("load prompts: %v", err)
	}
	if cfg.PromptsFile != "" {
		log.Printf("prompts loaded from %s style=%s", cfg.PromptsFile, builder.Style())
	}

	checker := health.New(health.Config{Store: st, Model: model})
	if status := checker.Check(ctx); status.Status != health.StatusHealthy {
		for _, c := range status.Components {
			if c.Status != health.StatusHealthy {
				log.Printf("startup health: %s %s %s", c.Name, c.Status, c.Error)
			}
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: float64(cfg.ModelRateLimit),
		Burst:             float64(cfg.ModelRateBurst),
	})
	stopSweep := make(chan struct{})
	if limiter != nil {
		log.Printf("model calls limited to %d/min per client (burst %d)", cfg.ModelRateLimit, cfg.ModelRateBurst)
		go limiter.Run(time.Minute, stopSweep)
	}

	hookCfg := hooks.Config{ScriptPath: cfg.HookScript, ScriptArgs: cfg.HookArgs, Timeout: cfg.HookTimeout}
	if err := hookCfg.Validate(); err != nil {
		log.Fatalf("hooks: %v", err)
	}
	dispatcher := hookCfg.NewDispatcher()
	if dispatcher != nil {
		log.Printf("document events go to %s", cfg.HookScript)
	}

	collector := metrics.NewCollector()
	httpSrv, err := httpserver.New(httpserver.Options{
		Store:          st,
		Model:          model,
		Prompts:        builder,
		Sessions:       session.NewStore(),
		Metrics:        collector,
		Health:         checker,
		Logger:         logging.Wrap(log.New(log.Writer(), "[docchatd/http] ", log.LstdFlags|log.Lmicroseconds), level),
		Limiter:        limiter,
		Hooks:          dispatcher,
		ChallengeCount: cfg.ChallengeCount,
		PreviewWords:   cfg.PreviewWords,
		HistoryTurns:   cfg.HistoryTurns,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("init http server: %v", err)
	}

	// No WriteTimeout: streamed answers last as long as the model generates.
	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           httpSrv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("docchat server listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigs
	log.Printf("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	close(stopSweep)
	snap := collector.GetSnapshot()
	log.Printf("served %d uploads, %d model calls", snap.Uploads, sum(snap.ModelCalls))
}

func sum(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}
