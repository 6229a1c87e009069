package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/coopfin/backoffice/cmd/coopctl/cli"
	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/app"
	"github.com/coopfin/backoffice/internal/catalog"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/cache"
	"github.com/coopfin/backoffice/internal/platform/db"
	"github.com/coopfin/backoffice/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	deps := cli.Deps{
		Jobs: func() (*cli.JobsCLI, error) {
			opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
			client := jobs.NewClient(opts)
			inspector := asynq.NewInspector(opts)
			closers = append(closers, func() {
				_ = client.Close()
				_ = inspector.Close()
			})
			return cli.NewJobsCLI(client, inspector), nil
		},
		Reports: func() (*cli.ReportCLI, error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4})
			if err != nil {
				return nil, err
			}
			closers = append(closers, pool.Close)
			redisClient, err := cache.New(ctx, cfg.RedisAddr)
			if err != nil {
				logger.Warn("redis unavailable, reports are computed without cache", slog.Any("error", err))
			} else {
				closers = append(closers, func() { _ = redisClient.Close() })
			}
			var reportCache *analytics.Cache
			if redisClient != nil {
				reportCache = analytics.NewCache(redisClient, cfg.CacheTTL)
			}
			catalogService := catalog.NewService(catalog.NewRepository(pool), reportCache, logger)
			service := analytics.NewService(
				ledger.NewRepository(pool, cfg.BalanceChunkSize),
				catalogService,
				catalogService,
				analytics.ServiceConfig{Cache: reportCache, Logger: logger, NameBatchSize: cfg.NameBatchSize, MaxReportDates: cfg.ReportMaxDates},
			)
			return cli.NewReportCLI(service, language.Spanish), nil
		},
	}

	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "coopctl:", err)
		stop()
		os.Exit(1)
	}
}
