package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridianhq/meridian/internal/app"
	"github.com/meridianhq/meridian/internal/marketplace"
	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/platform/cache"
	"github.com/meridianhq/meridian/internal/platform/db"
	"github.com/meridianhq/meridian/internal/registry"
	"github.com/meridianhq/meridian/internal/tenants"
	"github.com/meridianhq/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalogClient := registry.NewClient(registry.ClientConfig{
		BaseURL:   cfg.PluginAPIURL,
		Timeout:   cfg.RegistryTimeout,
		RetryMax:  cfg.RegistryRetryMax,
		RetryBase: cfg.RegistryRetryBase,
	})
	pluginRegistry := registry.New(catalogClient, registry.Options{
		Logger:      logger,
		Metrics:     metrics,
		InitTimeout: cfg.RegistryTimeout,
	})
	if err := pluginRegistry.Initialize(ctx); err != nil {
		logger.Error("initialize plugin registry", slog.Any("error", err))
	}

	tenantsRepo := tenants.NewRepository(pool)
	marketClient := marketplace.NewClient(cfg.MarketplaceAPIURL, cfg.RegistryTimeout)
	marketCache := marketplace.NewCache(redisClient, cfg.CatalogCacheTTL)
	marketService := marketplace.NewService(marketClient, marketCache, tenants.NewAssignments(tenantsRepo), logger)

	refreshJob := jobs.NewRegistryRefreshJob(pluginRegistry, nil, logger)
	syncJob := jobs.NewMarketplaceSyncJob(marketService, logger)

	refreshTask, err := jobs.NewRegistryRefreshTask(jobs.RegistryRefreshPayload{})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	syncTask, err := jobs.NewMarketplaceSyncTask()
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRegistryRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskMarketplaceSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "5 * * * *", Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
