package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coopfin/backoffice/internal/analytics"
	analytichttp "github.com/coopfin/backoffice/internal/analytics/http"
	"github.com/coopfin/backoffice/internal/app"
	"github.com/coopfin/backoffice/internal/catalog"
	"github.com/coopfin/backoffice/internal/coresync"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/observability"
	"github.com/coopfin/backoffice/internal/platform/cache"
	"github.com/coopfin/backoffice/internal/platform/db"
	"github.com/coopfin/backoffice/internal/shared"
	"github.com/coopfin/backoffice/jobs"
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 16, ConnectTimeout: 5 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

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

	analyticsCache := analytics.NewCache(redisClient, cfg.CacheTTL)
	if err := analyticsCache.ListenForInvalidation(ctx, analytics.BumpChannel); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}

	ledgerRepo := ledger.NewRepository(pool, cfg.BalanceChunkSize)
	balances := ledger.NewGuardedStore(ledgerRepo, "ledger-balances", logger)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, analyticsCache, logger)

	analyticsService := analytics.NewService(balances, catalogService, catalogService, analytics.ServiceConfig{
		Cache:          analyticsCache,
		Logger:         logger,
		Registerer:     metrics.Registerer(),
		NameBatchSize:  cfg.NameBatchSize,
		MaxReportDates: cfg.ReportMaxDates,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	syncStatus := coresync.NewSyncer(coresync.Config{
		Lock:    shared.NewLocker(redisClient),
		Redis:   redisClient,
		LockTTL: cfg.SyncLockTTL,
		Logger:  logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AnalyticsHandler: analytichttp.NewHandler(logger, analyticsService, balances, cfg.AppRequestTimeout, cfg.RateLimitPerMinute),
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		SyncHandler:      coresync.NewHandler(jobClient, syncStatus, cfg.SyncLookbackDays, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
