package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagerelay/config"
	"imagerelay/events"
	"imagerelay/failures"
	"imagerelay/fetcher"
	"imagerelay/job"
	"imagerelay/logger"
	"imagerelay/metrics"
	"imagerelay/recordstore"
	"imagerelay/routes"
	"imagerelay/success"
	writerbackends "imagerelay/writerBackends"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("%v; using info", err)
	}
	if err := logger.Init(cfg.LogFile, true, level); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Infof("Starting imagerelay (env=%s, backend=%s)", cfg.AppEnv, cfg.StorageBackend)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("Failed to create data directory %s: %v", cfg.DataDir, err)
	}

	// Initialize failure store
	logger.Debug("Initializing failures database")
	if err := failures.Init(cfg.GetFailuresDBPath()); err != nil {
		logger.Fatalf("Failed to initialize failure store: %v", err)
	}
	defer failures.Close()

	// Initialize success store
	logger.Debug("Initializing success database")
	if err := success.Init(cfg.GetSuccessDBPath()); err != nil {
		logger.Fatalf("Failed to initialize success store: %v", err)
	}
	defer success.Close()
	logger.Info("Audit databases initialized successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := writerbackends.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage backend: %v", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatalf("Failed to start event publisher: %v", err)
		}
		publisher = p
	}
	defer publisher.Close()

	m := metrics.Default()
	pipeline := job.New(job.Deps{
		Fetcher:  fetcher.New(&http.Client{}, cfg.FetchMaxBytes),
		Store:    store,
		Updater:  recordstore.New(cfg.RecordStoreURL, &http.Client{}, recordstore.DefaultTimeout),
		Timeouts: job.DefaultTimeouts(),
		Metrics:  m,
		Tracker:  job.NewTracker(),
	})

	deps := routes.Deps{
		Pipeline:    pipeline,
		Events:      publisher,
		Metrics:     m,
		AdminSecret: []byte(cfg.AdminTokenSecret),
		Development: cfg.Development(),
	}
	if ds, ok := store.(*writerbackends.DirectServeStore); ok {
		deps.Files = ds
	}
	if len(deps.AdminSecret) == 0 {
		logger.Warn("ADMIN_TOKEN_SECRET not set; admin endpoints are unprotected")
	}

	mux := http.NewServeMux()
	routes.Register(mux, deps)
	logger.Info("HTTP routes registered successfully")

	go cleanupRoutine(ctx, cfg.RecordRetention)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down, waiting for in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Graceful shutdown failed: %v", err)
		}
	}()

	logger.Infof("imagerelay listening on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed to start: %v", err)
	}
}

// cleanupRoutine periodically removes success and failure records older than retention
func cleanupRoutine(ctx context.Context, retention time.Duration) {
	logger.Info("Cleanup routine started - will run every 24 hours")
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			logger.Debugf("Cleaning up records older than %v", retention)

			if n, err := success.CleanupOldRecords(retention); err != nil {
				logger.Errorf("Failed to cleanup old success records: %v", err)
			} else {
				logger.Infof("Removed %d old success records", n)
			}

			if n, err := failures.CleanupOldRecords(retention); err != nil {
				logger.Errorf("Failed to cleanup old failure records: %v", err)
			} else {
				logger.Infof("Removed %d old failure records", n)
			}
		}
	}
}
