// Package main is the entrypoint for the insrobot API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/insrobot/internal/api"
	"github.com/kiranshivaraju/insrobot/internal/api/handler"
	mw "github.com/kiranshivaraju/insrobot/internal/api/middleware"
	"github.com/kiranshivaraju/insrobot/internal/api/response"
	"github.com/kiranshivaraju/insrobot/internal/cache"
	"github.com/kiranshivaraju/insrobot/internal/config"
	"github.com/kiranshivaraju/insrobot/internal/generate"
	"github.com/kiranshivaraju/insrobot/internal/jobqueue"
	"github.com/kiranshivaraju/insrobot/internal/spool"
	"github.com/kiranshivaraju/insrobot/internal/store"
	"github.com/kiranshivaraju/insrobot/internal/transform"
)

const (
	shutdownTimeout = 30 * time.Second
	// writeSlack keeps the server write deadline past the longest generate wait.
	writeSlack = 30 * time.Second
)

func main() {
	slog.SetDefault(newLogger("info"))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("config loaded", "transform_provider", cfg.Transform.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. History store
	history, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer history.Close()

	// 3. Cache
	reqCache, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Image transform backend
	transformer, err := transform.NewTransformer(cfg.Transform)
	if err != nil {
		return fmt.Errorf("create transformer: %w", err)
	}
	slog.Info("transformer initialized", "provider", transformer.Name())

	// 5. Spool and queue state
	sp, err := spool.New(cfg.Queue.SpoolDir)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	slog.Info("spool ready", "dir", sp.Dir())

	queue := jobqueue.NewQueue()
	results := jobqueue.NewResults()
	provenance := jobqueue.NewProvenance()

	worker := jobqueue.NewWorker(queue, results, provenance, transformer, sp,
		jobqueue.WithRecorder(store.NewRecorder(history)),
		jobqueue.WithTransformTimeout(cfg.Transform.Timeout),
	)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	svc := generate.NewService(queue, results, provenance, sp, reqCache, generate.Config{
		GenerateTimeout:   cfg.Queue.GenerateTimeout,
		RegenerateTimeout: cfg.Queue.RegenerateTimeout,
		MaxBatch:          cfg.Queue.MaxBatch,
	})

	// 6. Build router with dependencies
	auth := mw.NewAuth(cfg.Auth.TokenHash)
	if !auth.Enabled() {
		slog.Warn("OPERATOR_TOKEN_HASH not set, API authentication disabled")
	}
	rateLimit := mw.NewRateLimit(reqCache, cfg.Auth.RateLimit, cfg.Auth.RateWindow)

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:     healthHandler(history, reqCache, queue),
		GenerateHandler:   handler.NewGenerateHandler(svc),
		RegenerateHandler: handler.NewRegenerateHandler(svc),
		StatusHandler:     handler.NewRequestStatusHandler(svc),
		HistoryHandler:    handler.NewListGenerationsHandler(history),
		LibraryHandler:    handler.NewLibraryHandler(cfg.Queue.ToGenerateDir),
	})

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Queue.GenerateTimeout + writeSlack,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		worker.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown: stop accepting requests, then let the worker finish its job.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	srvErr := srv.Shutdown(shutdownCtx)
	if srvErr != nil {
		srvErr = fmt.Errorf("server shutdown: %w", srvErr)
	}
	workerErr := worker.Shutdown(shutdownCtx)
	if workerErr != nil {
		workerErr = fmt.Errorf("worker shutdown: %w", workerErr)
	}
	if err := errors.Join(srvErr, workerErr); err != nil {
		return err
	}

	slog.Info("server stopped gracefully", "abandoned_jobs", queue.Len())
	return nil
}

// openStore connects to Postgres when a URL is configured and falls back to
// the local SQLite file otherwise.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.URL == "" {
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("history store ready", "driver", "sqlite", "path", cfg.SQLitePath)
		return s, nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := store.RunMigrations(cfg.URL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("history store ready", "driver", "postgres")
	return store.NewPostgresStore(pool), nil
}

// openCache returns Redis when configured, else an in-process cache.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		slog.Info("cache ready", "driver", "memory")
		return cache.NewMemoryCache(), func() {}, nil
	}

	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("cache ready", "driver", "redis")
	return rc, func() { rc.Close() }, nil
}

// healthHandler checks store and cache connectivity and reports queue depth.
func healthHandler(s store.Store, c cache.Cache, q *jobqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":      "ok",
			"services":    checks,
			"queue_depth": q.Len(),
		})
	}
}
