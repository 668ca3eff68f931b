// Package main is the entrypoint for the field dispatch API server and its
// event consumers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/ai"
	"github.com/kiranshivaraju/fielddispatch/internal/api"
	"github.com/kiranshivaraju/fielddispatch/internal/api/handler"
	mw "github.com/kiranshivaraju/fielddispatch/internal/api/middleware"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/broker"
	"github.com/kiranshivaraju/fielddispatch/internal/cache"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/internal/consumer"
	"github.com/kiranshivaraju/fielddispatch/internal/dispatch"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/realtime"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

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

	// 4. Create Redis cache; the broker and realtime fan-out share its client
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	rdb := redisCache.Client()
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Store, events and realtime
	pgStore := store.NewPostgresStore(pool)
	redisBroker := broker.NewRedisBroker(rdb,
		broker.WithMaxDeliveries(cfg.Events.MaxDeliveries),
		broker.WithVisibilityTimeout(cfg.Events.VisibilityTimeout),
	)
	bus := events.NewBus(redisBroker)
	hub := realtime.NewHub(slog.Default())
	notifier := realtime.NewRedisNotifier(rdb, realtime.DefaultChannel)
	recorder := audit.NewRecorder(pgStore, slog.Default())

	// 7. Services
	opts := []dispatch.Option{
		dispatch.WithPublishTimeouts(cfg.Events.RequestPublishTimeout, cfg.Events.PublishTimeout),
		dispatch.WithLookupRetry(cfg.Events.LookupAttempts, cfg.Events.LookupDelay),
	}
	svc := dispatch.NewService(pgStore, bus, recorder, slog.Default(), opts...)
	fulfiller := dispatch.NewFulfiller(pgStore, aiProvider, bus, slog.Default(), opts...)

	// 8. Consumers
	workers := broker.NewConsumer(redisBroker, broker.ConsumerConfig{
		WorkersPerTopic: cfg.Events.WorkersPerTopic,
		ReaperInterval:  cfg.Events.ReaperInterval,
	}, slog.Default())
	handlers := &consumer.Handlers{
		Triager:   svc,
		Fulfiller: fulfiller,
		Notifier:  notifier,
		Audit:     recorder,
		Cache:     redisCache,
		Logger:    slog.Default(),
	}
	handlers.Register(workers)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		workers.Run(ctx)
	}()
	go func() {
		defer background.Done()
		if err := hub.Run(ctx, rdb, realtime.DefaultChannel); err != nil {
			slog.Error("realtime fan-out stopped", "error", err)
		}
	}()

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PerMinute),

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: promhttp.Handler(),

		ListJobs:        handler.NewListJobsHandler(svc),
		CreateJob:       handler.NewCreateJobHandler(svc),
		GetJob:          handler.NewGetJobHandler(svc),
		UpdateJob:       handler.NewUpdateJobHandler(svc),
		UpdateJobStatus: handler.NewUpdateJobStatusHandler(svc),
		CancelJob:       handler.NewCancelJobHandler(svc),

		ListAssignments:  handler.NewListAssignmentsHandler(svc),
		AssignVendor:     handler.NewAssignVendorHandler(svc),
		RevokeAssignment: handler.NewRevokeAssignmentHandler(svc),

		ListRecommendations:   handler.NewListRecommendationsHandler(svc),
		RequestRecommendation: handler.NewRequestRecommendationHandler(svc),
		LatestRecommendation:  handler.NewLatestRecommendationHandler(svc),
		RecommendationStatus:  handler.NewRecommendationStatusHandler(svc, svc, redisCache),

		ListVendors:      handler.NewListVendorsHandler(svc),
		CreateVendor:     handler.NewCreateVendorHandler(svc),
		GetVendor:        handler.NewGetVendorHandler(svc),
		ActivateVendor:   handler.NewSetVendorActiveHandler(svc, true),
		DeactivateVendor: handler.NewSetVendorActiveHandler(svc, false),

		Stream:        handler.NewStreamHandler(hub, svc, handler.DefaultHeartbeat),
		ListAuditLogs: handler.NewListAuditLogsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// Shutdown waits for active handlers, so end the event streams first.
	srv.RegisterOnShutdown(hub.Close)

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
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown: %w", err)
	}

	// Consumers and the fan-out stop on the cancelled signal context.
	background.Wait()

	if serveErr != nil {
		return serveErr
	}
	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
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
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
