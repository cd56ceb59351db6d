package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridianhq/meridian/internal/app"
	"github.com/meridianhq/meridian/internal/auth"
	"github.com/meridianhq/meridian/internal/entitlement"
	"github.com/meridianhq/meridian/internal/loader"
	"github.com/meridianhq/meridian/internal/marketplace"
	"github.com/meridianhq/meridian/internal/observability"
	"github.com/meridianhq/meridian/internal/platform/cache"
	"github.com/meridianhq/meridian/internal/platform/db"
	"github.com/meridianhq/meridian/internal/plugins/blog"
	"github.com/meridianhq/meridian/internal/rbac"
	"github.com/meridianhq/meridian/internal/registry"
	"github.com/meridianhq/meridian/internal/shared"
	"github.com/meridianhq/meridian/internal/tenants"
	"github.com/meridianhq/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacResolver := rbac.NewResolver(rbacRepo, cfg.SuperAdminRoleID)
	rbacEvaluator := rbac.NewEvaluator()
	rbacMiddleware := rbac.Middleware{Resolver: rbacResolver, Evaluator: rbacEvaluator, Logger: logger}

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
	// A failed initialization leaves the portal running with zero plugins;
	// a later refresh can still recover it.
	if err := pluginRegistry.Initialize(ctx); err != nil {
		logger.Error("initialize plugin registry", slog.Any("error", err))
	}

	tenantsRepo := tenants.NewRepository(dbpool)
	marketClient := marketplace.NewClient(cfg.MarketplaceAPIURL, cfg.RegistryTimeout)
	marketCache := marketplace.NewCache(redisClient, cfg.CatalogCacheTTL)

	marketService := marketplace.NewService(marketClient, marketCache, tenants.NewAssignments(tenantsRepo), logger)
	tenantsService := tenants.NewService(tenantsRepo, marketService, logger)

	gate := entitlement.NewGate(pluginRegistry, rbacEvaluator, marketService, logger, metrics)

	blogBundle := blog.NewBundle(cfg.BlogPluginID, logger, blog.NewRepository(dbpool))
	bundleSource := loader.NewStaticSource(blogBundle)

	routeTable := loader.NewRouteTable()
	navigation := loader.NewNavigation()
	pluginLoader := loader.New(bundleSource, pluginRegistry, gate, marketService, routeTable, navigation, logger, metrics)
	if _, err := pluginLoader.Load(ctx, loader.Options{}); err != nil {
		logger.Error("merge plugin contributions", slog.Any("error", err))
	}

	registryHandler := registry.NewHandler(logger, pluginRegistry, pluginLoader, rbacMiddleware)
	tenantsHandler := tenants.NewHandler(logger, tenantsService, rbacMiddleware)
	navHandler := loader.NewNavHandler(navigation, gate, rbacMiddleware)

	marketplaceHandler := marketplace.NewHandler(logger, marketService, rbacMiddleware,
		func(ctx context.Context, tenantID int64, pluginID, tierID string) error {
			return tenantsService.SetTier(ctx, tenantID, pluginID, tierID)
		})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		RegistryHandler:    registryHandler,
		MarketplaceHandler: marketplaceHandler,
		TenantsHandler:     tenantsHandler,
		NavHandler:         navHandler,
		JobHandler:         jobHandler,
		Routes:             routeTable,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
