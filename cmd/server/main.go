// Package main runs the PortalPilot history API: a read-mostly HTTP view over
// recorded agent runs, their submissions and live job progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kiranshivaraju/portalpilot/internal/api"
	"github.com/kiranshivaraju/portalpilot/internal/api/handler"
	mw "github.com/kiranshivaraju/portalpilot/internal/api/middleware"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/internal/cache"
	"github.com/kiranshivaraju/portalpilot/internal/config"
	"github.com/kiranshivaraju/portalpilot/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	migrationsDir   = "migrations"
	// requestsPerMinute is the per-key budget on the protected routes.
	requestsPerMinute = 60
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("dotenv not loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireStorage()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database ready")

	rc, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer rc.Close()
	if err := rc.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis ready")

	srv := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:      api.NewRouter(newDependencies(store.NewPostgresStore(pool), rc)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, srv, srv.ListenAndServe)
}

// serve runs listen until it fails or ctx is done, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func newDependencies(s store.Store, c cache.Cache) api.Dependencies {
	return api.Dependencies{
		Auth:      mw.NewAuth(s),
		RateLimit: mw.NewRateLimit(c, requestsPerMinute),

		HealthHandler:      healthHandler(s, c),
		ListRunsHandler:    handler.NewListRunsHandler(s),
		GetRunHandler:      handler.NewGetRunHandler(s),
		SubmissionsHandler: handler.NewListSubmissionsHandler(s),
		LeaderboardHandler: handler.NewLeaderboardHandler(s, c),
		JobProgressHandler: handler.NewJobProgressHandler(c),
		CreateKeyHandler:   handler.NewCreateKeyHandler(s),
		ListKeysHandler:    handler.NewListKeysHandler(s),
		RevokeKeyHandler:   handler.NewRevokeKeyHandler(s),
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports "ok" or "degraded" for each backing service and
// answers 503 when any of them is down.
func healthHandler(db, c pinger) http.HandlerFunc {
	deps := map[string]pinger{"database": db, "cache": c}

	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(deps))
		healthy := true
		for name, p := range deps {
			checks[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "health check failed", "service", name, "error", err)
				checks[name] = "degraded"
				healthy = false
			}
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "services": checks})
	}
}
