package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizdir/internal/api"
	"bizdir/internal/config"
	"bizdir/internal/database"
	"bizdir/internal/domain"
	"bizdir/internal/events"
	"bizdir/internal/logging"
	"bizdir/internal/metrics"
	"bizdir/internal/models"
	"bizdir/internal/places"
	"bizdir/internal/repository"
	"bizdir/internal/service"
	"bizdir/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	resultCache := buildResultCache(redisClient, &logger)
	runLock := buildRunLock(redisClient)

	eventBus := events.NewEventBus()
	subscribeCacheInvalidation(eventBus, resultCache, &logger)
	subscribeBudgetAlerts(eventBus, &logger)

	costPerCall, err := cfg.CostPerCall()
	if err != nil {
		return fmt.Errorf("parse cost per call: %w", err)
	}
	monthlyCap, err := cfg.MonthlyCap()
	if err != nil {
		return fmt.Errorf("parse monthly cap: %w", err)
	}

	enrichmentService := service.NewEnrichmentService(db, resultCache, eventBus, &logger)
	budgetService := service.NewBudgetService(db, monthlyCap, &logger)

	placesClient := places.NewHTTPClient(cfg.Enrichment.Places, &logger)

	processor := worker.NewProcessor(db, placesClient, eventBus, worker.ProcessorOptions{
		CostPerCall: costPerCall,
		MonthlyCap:  monthlyCap,
		MaxAttempts: cfg.Enrichment.MaxAttempts,
		WarnPercent: cfg.Budget.WarnThresholdPercent,
		CallTimeout: cfg.Enrichment.Places.Timeout,
	}, &logger)

	scheduler := worker.NewScheduler(
		processor,
		db,
		runLock,
		cfg.Enrichment.Interval,
		cfg.Enrichment.StaleAfter,
		cfg.Enrichment.DefaultBatchSize,
		&logger,
	)

	httpServer := api.NewHTTPServer(cfg, enrichmentService, budgetService, scheduler, db, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Enrichment.SchedulerEnabled {
		go scheduler.Start(ctx)
	} else {
		logger.Info().Msg("scheduler disabled, queue drains only on manual runs")
	}

	backup := database.NewBackupService(cfg.Database.Path, cfg.Database.Backup, &logger)
	go backup.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func buildResultCache(redisClient *redis.Client, logger *zerolog.Logger) domain.ResultCache {
	ttl := models.ResultCacheTTL * time.Second
	memory := repository.NewMemoryResultCache(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverResultCache(repository.NewRedisResultCache(redisClient, ttl), memory, logger)
}

func buildRunLock(redisClient *redis.Client) domain.RunLocker {
	if redisClient == nil {
		return repository.NewMemoryRunLock()
	}
	return repository.NewRedisRunLock(redisClient)
}

// subscribeCacheInvalidation drops the cached result whenever an entry reaches
// a terminal state, so readers see the freshest store row.
func subscribeCacheInvalidation(bus *events.EventBus, cache domain.ResultCache, logger *zerolog.Logger) {
	invalidate := func(event *events.Event) error {
		var payload events.EnrichmentEventPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			logger.Error().Err(err).Str("event_type", event.Type).Msg("decode event payload")
			return err
		}
		if err := cache.InvalidateResult(context.Background(), payload.BusinessID); err != nil {
			logger.Warn().Err(err).Int64("business_id", payload.BusinessID).Msg("invalidate cached result")
		}
		return nil
	}

	bus.Subscribe(events.EventEnrichmentCompleted, invalidate)
	bus.Subscribe(events.EventEnrichmentFailed, invalidate)
}

// subscribeBudgetAlerts surfaces threshold crossings in the operator log and
// pushes the period gauges without waiting for the next budget read.
func subscribeBudgetAlerts(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventBudgetThreshold, func(event *events.Event) error {
		var payload events.BudgetEventPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			logger.Error().Err(err).Str("event_type", event.Type).Msg("decode event payload")
			return err
		}
		metrics.SetBudget(payload.SpentUSD, payload.CapUSD-payload.SpentUSD)
		logger.Warn().
			Str("period", payload.PeriodKey).
			Float64("spent_usd", payload.SpentUSD).
			Float64("cap_usd", payload.CapUSD).
			Float64("percent_used", payload.PercentUsed).
			Msg("enrichment budget nearing cap")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
