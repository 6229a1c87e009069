package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coopfin/backoffice/internal/analytics"
	jobmetrics "github.com/coopfin/backoffice/internal/jobs"
	"github.com/coopfin/backoffice/internal/shared"
)

const (
	defaultWarmupMonths = 6
	officeWarmupTimeout = 20 * time.Second
)

// Warmer prebuilds cached analytics for one office.
type Warmer interface {
	Warmup(ctx context.Context, office string, from, to time.Time, period analytics.Granularity) (analytics.WarmupSummary, error)
}

// OfficeLister enumerates the offices present in the ledger mirror.
type OfficeLister interface {
	ListOffices(ctx context.Context) ([]string, error)
}

// OfficeLocker serialises warmups of one office across workers.
type OfficeLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// AnalyticsWarmupJob pre-populates analytics caches for every office. When Locks is
// set, an office already being warmed elsewhere is skipped.
type AnalyticsWarmupJob struct {
	Analytics Warmer
	Offices   OfficeLister
	Locks     OfficeLocker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(warmer Warmer, offices OfficeLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{
		Analytics: warmer,
		Offices:   offices,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskAnalyticsWarmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	var payload AnalyticsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Months <= 0 {
		payload.Months = defaultWarmupMonths
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskAnalyticsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("months", payload.Months))
	logger.Info("starting analytics warmup")

	offices := payload.Offices
	if len(offices) == 0 {
		if j.Offices == nil {
			resultErr = errors.New("analytics warmup: office lister not configured")
			return resultErr
		}
		listed, err := j.Offices.ListOffices(ctx)
		if err != nil {
			resultErr = err
			logger.Error("load warmup offices", slog.Any("error", err))
			return resultErr
		}
		offices = listed
	}
	if len(offices) == 0 {
		logger.Info("no offices discovered for warmup")
		return resultErr
	}

	start := j.now()
	to := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	from := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(payload.Months - 1), 0)
	reports, skipped := 0, 0
	for _, office := range offices {
		summary, held, err := j.warmOffice(ctx, office, from, to)
		if held {
			skipped++
			logger.Info("office warmup already running", slog.String("office", office))
			continue
		}
		if err != nil {
			resultErr = err
			logger.Error("warm office", slog.String("office", office), slog.Any("error", err))
			return resultErr
		}
		reports += summary.Reports
	}
	metrics.AddRecords(TaskAnalyticsWarmup, "reports", reports)
	logger.Info("completed analytics warmup",
		slog.Int("offices", len(offices)),
		slog.Int("reports", reports),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// warmOffice reports held when another worker owns the office lock.
func (j *AnalyticsWarmupJob) warmOffice(ctx context.Context, office string, from, to time.Time) (analytics.WarmupSummary, bool, error) {
	if j.Locks != nil {
		key := shared.WarmupLockKey(office)
		token, err := j.Locks.Acquire(ctx, key, 2*officeWarmupTimeout)
		if err != nil {
			return analytics.WarmupSummary{}, false, err
		}
		if token == "" {
			return analytics.WarmupSummary{}, true, nil
		}
		defer func() {
			if err := j.Locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
				j.logger().Warn("release warmup lock", slog.String("office", office), slog.Any("error", err))
			}
		}()
	}
	officeCtx, cancel := context.WithTimeout(ctx, officeWarmupTimeout)
	defer cancel()
	summary, err := j.Analytics.Warmup(officeCtx, office, from, to, analytics.GranularityMonthly)
	return summary, false, err
}

func (j *AnalyticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsWarmup))
}

func (j *AnalyticsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AnalyticsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
