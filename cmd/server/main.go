// Package main is the entrypoint for the enrichq API server.
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

	"github.com/kiranshivaraju/enrichq/internal/ai"
	"github.com/kiranshivaraju/enrichq/internal/alert"
	"github.com/kiranshivaraju/enrichq/internal/api"
	"github.com/kiranshivaraju/enrichq/internal/api/handler"
	mw "github.com/kiranshivaraju/enrichq/internal/api/middleware"
	"github.com/kiranshivaraju/enrichq/internal/cache"
	"github.com/kiranshivaraju/enrichq/internal/config"
	"github.com/kiranshivaraju/enrichq/internal/enrich"
	"github.com/kiranshivaraju/enrichq/internal/health"
	"github.com/kiranshivaraju/enrichq/internal/queue"
	"github.com/kiranshivaraju/enrichq/internal/scheduler"
	"github.com/kiranshivaraju/enrichq/internal/store"
	"github.com/kiranshivaraju/enrichq/pkg/models"
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

// backend is the storage side of the service: the job store, the cache and the
// alert source. Which implementations are used depends on STORE_DRIVER.
type backend struct {
	store   store.Store
	cache   cache.Cache
	source  alert.Source
	cleanup []func()
}

func (b *backend) close() {
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		b.cleanup[i]()
	}
}

func run() error {
	// Fail fast on invalid config.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "store_driver", cfg.Store.Driver, "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	enricher, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", enricher.Name())

	app := newApp(cfg, be, enricher)

	sched, err := app.scheduler(cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	sched.Start(schedCtx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     app.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived alert streams.
		IdleTimeout: 60 * time.Second,
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
		stopSched()
		sched.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	stopSched()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	sched.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// openBackend connects the store, cache and alert source for the configured driver.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	be := &backend{}

	switch cfg.Store.Driver {
	case "memory":
		broker := alert.NewBroker()
		be.store = store.NewMemoryStore(store.WithAlertHook(broker.Publish))
		be.source = broker
		slog.Warn("using in-memory store; data is lost on restart")

	default:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		be.cleanup = append(be.cleanup, pool.Close)
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			be.close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		be.store = store.NewPostgresStore(pool)
		be.source = alert.NewPGSource(pool)
	}

	if cfg.Redis.URL == "" {
		rc, stopRedis, err := cache.StartEmbedded()
		if err != nil {
			be.close()
			return nil, err
		}
		be.cache = rc
		be.cleanup = append(be.cleanup, stopRedis)
		slog.Info("embedded redis started")
		return be, nil
	}

	rc, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	be.cleanup = append(be.cleanup, func() { _ = rc.Close() })

	if err := rc.Ping(ctx); err != nil {
		be.close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	be.cache = rc
	slog.Info("redis connected")
	return be, nil
}

// app is the wired service: every component built once and shared by the
// router and the scheduler.
type app struct {
	router     http.Handler
	reaper     *queue.Reaper
	aggregator *queue.Aggregator
	supervisor *health.Supervisor
}

func newApp(cfg *config.Config, be *backend, enricher models.Enricher) *app {
	publisher := alert.NewPublisher(be.store, be.cache)
	policy := queue.NewStaleness(cfg.Scheduler.StaleThreshold)

	reaper := queue.NewReaper(be.store, policy, publisher, queue.WithStatusCache(be.cache))
	aggregator := queue.NewAggregator(be.store, policy, be.cache, 2*cfg.Scheduler.MetricsInterval)
	supervisor := health.NewSupervisor(be.store, aggregator,
		health.ThresholdsFromConfig(cfg.Health, cfg.Credentials),
		health.WithAlerts(publisher))
	dispatcher := alert.NewDispatcher(be.source, be.cache)

	svc := enrich.NewService(be.store, enricher,
		enrich.WithCache(be.cache),
		enrich.WithTimeout(cfg.AI.InferenceTimeout),
		enrich.WithParallelism(cfg.Enrich.MaxConcurrency))

	router := api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(be.store),
		RateLimit:      mw.NewRateLimit(be.cache, cfg.Server.RequestsPerMin),
		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler:       handler.NewHealthHandler(supervisor),
		EnrichHandler:       handler.NewEnrichHandler(svc),
		OwnerJobsHandler:    handler.NewOwnerJobsHandler(be.store),
		JobStatusHandler:    handler.NewJobStatusHandler(be.store, be.cache),
		QueueMetricsHandler: handler.NewQueueMetricsHandler(aggregator),
		ListAlertsHandler:   handler.NewListAlertsHandler(be.store, be.cache),
		AlertStreamHandler:  handler.NewAlertStreamHandler(dispatcher, cfg.Server.AllowedOrigins...),
	})

	return &app{
		router:     router,
		reaper:     reaper,
		aggregator: aggregator,
		supervisor: supervisor,
	}
}

func (a *app) scheduler(cfg config.SchedulerConfig) (*scheduler.Scheduler, error) {
	return scheduler.New(
		scheduler.Task{Name: "reaper", Interval: cfg.ReaperInterval, Run: a.reaper.Run},
		scheduler.Task{Name: "queue_metrics", Interval: cfg.MetricsInterval, Run: a.aggregator.Refresh, RunAtStart: true},
		scheduler.Task{Name: "health", Interval: cfg.HealthInterval, Run: a.supervisor.Run, RunAtStart: true},
	)
}
