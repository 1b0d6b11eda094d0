// Package main is the entrypoint for the ServiceMap API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/servicemap/internal/api"
	"github.com/kiranshivaraju/servicemap/internal/api/handler"
	mw "github.com/kiranshivaraju/servicemap/internal/api/middleware"
	"github.com/kiranshivaraju/servicemap/internal/cache"
	"github.com/kiranshivaraju/servicemap/internal/config"
	"github.com/kiranshivaraju/servicemap/internal/discovery"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/internal/topology"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"topology_cache_ttl", cfg.Topology.CacheTTL,
		"discovery_enabled", cfg.Discovery.Enabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Topology service and optional provider client
	pgStore := store.NewPostgresStore(pool)
	topo := topology.NewService(pgStore, redisCache, cfg.Topology.CacheTTL)

	var provider discovery.Client
	if cfg.Discovery.Enabled() {
		dc := cfg.Discovery
		provider = discovery.NewHTTPClient(dc.BaseURL, dc.Username, dc.Password, dc.OrgID, dc.Timeout)
		if err := provider.Ready(ctx); err != nil {
			slog.Warn("topology provider not ready", "base_url", dc.BaseURL, "error", err)
		}
	}

	// 6. Build router
	router := api.NewRouter(buildDependencies(cfg, pgStore, redisCache, topo, provider))

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second + cfg.Discovery.Timeout,
		IdleTimeout:  60 * time.Second,
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
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildDependencies wires handlers to their backing services. Provider sync
// is left unset, and served as 501, when no provider is configured.
func buildDependencies(cfg *config.Config, st store.Store, c cache.Cache, topo *topology.Service, provider discovery.Client) api.Dependencies {
	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute),

		HealthHandler: handler.NewHealthHandler(st, c),

		GetTopology: handler.NewGetTopologyHandler(topo),
		GetService:  handler.NewGetServiceHandler(topo),

		CreateService:    handler.NewCreateServiceHandler(topo),
		UpdateService:    handler.NewUpdateServiceHandler(topo),
		DeleteService:    handler.NewDeleteServiceHandler(topo),
		CreateDependency: handler.NewCreateDependencyHandler(topo),
		DeleteDependency: handler.NewDeleteDependencyHandler(topo),

		ListApplications:  handler.NewListApplicationsHandler(topo),
		GetApplication:    handler.NewGetApplicationHandler(topo),
		CreateApplication: handler.NewCreateApplicationHandler(topo),
		UpdateApplication: handler.NewUpdateApplicationHandler(topo),
		DeleteApplication: handler.NewDeleteApplicationHandler(topo),

		CreateKeyHandler: handler.NewCreateKeyHandler(st),
		ListKeysHandler:  handler.NewListKeysHandler(st),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(st),
	}
	if provider != nil {
		deps.SyncProvider = handler.NewSyncProviderHandler(st, provider, topo)
	}
	return deps
}
