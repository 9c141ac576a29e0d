// Package main is the entrypoint for the spsync API server.
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

	"github.com/dmarques/spsync/internal/api"
	"github.com/dmarques/spsync/internal/api/handler"
	mw "github.com/dmarques/spsync/internal/api/middleware"
	"github.com/dmarques/spsync/internal/cache"
	"github.com/dmarques/spsync/internal/config"
	"github.com/dmarques/spsync/internal/feed"
	"github.com/dmarques/spsync/internal/plan"
	"github.com/dmarques/spsync/internal/pricing"
	"github.com/dmarques/spsync/internal/resolve"
	"github.com/dmarques/spsync/internal/run"
	"github.com/dmarques/spsync/internal/spapi"
	"github.com/dmarques/spsync/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := runServer(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func runServer() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "simulate", cfg.Marketplace.Simulate)

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

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Marketplace client: simulated unless real credentials are configured
	client := newMarketplaceClient(cfg.Marketplace)

	// 7. Domain services
	engine := pricing.NewEngine(cfg.Pricing)
	resolver := resolve.New(client, redisCache, cfg.Marketplace.SellerID)
	planner := plan.New(resolver, engine, pricing.NewOffersSource(client), pgStore)
	feeds := feed.NewManager(client, cfg.Feeds)
	runner := run.NewRunner(pgStore, planner, feeds, redisCache, cfg)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		IngestProducts:      handler.NewIngestProductsHandler(pgStore),
		ClassifyHandler:     handler.NewClassifyHandler(runner),
		ListClassifications: handler.NewListClassificationsHandler(pgStore),
		ApproveHandler:      handler.NewApproveHandler(planner),
		BulkApproveHandler:  handler.NewBulkApproveHandler(planner),

		SyncHandler:     handler.NewSyncHandler(runner),
		RefreshListings: handler.NewRefreshListingsHandler(runner),
		ListRunsHandler: handler.NewListRunsHandler(pgStore),
		GetRunHandler:   handler.NewGetRunHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newMarketplaceClient(cfg config.MarketplaceConfig) spapi.Client {
	if cfg.Simulate {
		slog.Info("marketplace client in simulation mode")
		return spapi.NewSimClient()
	}
	return spapi.NewHTTPClient(cfg, spapi.NewSession(cfg))
}
