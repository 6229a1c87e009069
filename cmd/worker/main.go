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
	"github.com/coopfin/backoffice/internal/app"
	"github.com/coopfin/backoffice/internal/catalog"
	"github.com/coopfin/backoffice/internal/coresync"
	jobmetrics "github.com/coopfin/backoffice/internal/jobs"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/observability"
	"github.com/coopfin/backoffice/internal/platform/cache"
	"github.com/coopfin/backoffice/internal/platform/db"
	"github.com/coopfin/backoffice/internal/shared"
	"github.com/coopfin/backoffice/jobs"
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
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	slog.SetDefault(logger)

	if cfg.CoreMySQLDSN == "" {
		logger.Error("CORE_MYSQL_DSN is required by the worker")
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 8, ConnectTimeout: 5 * time.Second})
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

	source, err := coresync.OpenMySQLSource(cfg.CoreMySQLDSN)
	if err != nil {
		logger.Error("open core banking source", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("core source close", slog.Any("error", err))
		}
	}()
	if err := source.Ping(ctx); err != nil {
		logger.Warn("core source ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	analyticsCache := analytics.NewCache(redisClient, cfg.CacheTTL)
	ledgerRepo := ledger.NewRepository(pool, cfg.BalanceChunkSize)
	catalogService := catalog.NewService(catalog.NewRepository(pool), analyticsCache, logger)
	analyticsService := analytics.NewService(
		ledger.NewGuardedStore(ledgerRepo, "ledger-balances", logger),
		catalogService,
		catalogService,
		analytics.ServiceConfig{
			Cache:          analyticsCache,
			Logger:         logger,
			Registerer:     metrics.Registerer(),
			NameBatchSize:  cfg.NameBatchSize,
			MaxReportDates: cfg.ReportMaxDates,
		},
	)

	locker := shared.NewLocker(redisClient)
	syncer := coresync.NewSyncer(coresync.Config{
		Source:  source,
		Sink:    ledgerRepo,
		Lock:    locker,
		Cache:   analyticsCache,
		Redis:   redisClient,
		LockTTL: cfg.SyncLockTTL,
		Logger:  logger,
	})
	mirrorJob := jobs.NewCoreMirrorJob(syncer, cfg.SyncLookbackDays, logger, jobMetrics)
	warmupJob := jobs.NewAnalyticsWarmupJob(analyticsService, ledgerRepo, logger, jobMetrics)
	warmupJob.Locks = locker

	mirrorTask, err := jobs.NewCoreMirrorTask(jobs.CoreMirrorPayload{LookbackDays: cfg.SyncLookbackDays})
	if err != nil {
		logger.Error("build mirror task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewAnalyticsWarmupTask(jobs.AnalyticsWarmupPayload{Months: cfg.WarmupMonths})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCoreMirror, Handler: mirrorJob.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncCron, Task: mirrorTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
