package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coopfin/backoffice/internal/coresync"
	jobmetrics "github.com/coopfin/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MirrorRunner performs one mirror pass.
type MirrorRunner interface {
	Run(ctx context.Context, req coresync.SyncRequest) (coresync.SyncResult, error)
}

// CoreMirrorJob adapts the core mirror syncer to asynq.
type CoreMirrorJob struct {
	Syncer          MirrorRunner
	Logger          *slog.Logger
	Metrics         *jobmetrics.Metrics
	DefaultLookback int
	clock           func() time.Time
}

// NewCoreMirrorJob wires dependencies for the mirror handler.
func NewCoreMirrorJob(syncer MirrorRunner, defaultLookback int, logger *slog.Logger, metrics *jobmetrics.Metrics) *CoreMirrorJob {
	return &CoreMirrorJob{
		Syncer:          syncer,
		Logger:          logger,
		Metrics:         metrics,
		DefaultLookback: defaultLookback,
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes TaskCoreMirror tasks. An empty payload uses the default lookback.
func (j *CoreMirrorJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("core mirror: handler not configured")
	}
	var payload CoreMirrorPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.LookbackDays <= 0 {
		payload.LookbackDays = j.DefaultLookback
	}
	if payload.LookbackDays < 0 {
		payload.LookbackDays = 0
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskCoreMirror)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -payload.LookbackDays)
	logger := j.logger().With(slog.Int("lookback_days", payload.LookbackDays))
	logger.Info("starting core mirror")

	result, err := j.Syncer.Run(ctx, coresync.SyncRequest{Since: since})
	if err != nil {
		resultErr = err
		logger.Error("core mirror failed", slog.Any("error", err))
		return resultErr
	}
	if result.Skipped {
		metrics.Skipped(TaskCoreMirror)
		return resultErr
	}
	metrics.AddRecords(TaskCoreMirror, "accounts", result.Accounts)
	metrics.AddRecords(TaskCoreMirror, "balances", result.Balances)
	return resultErr
}

func (j *CoreMirrorJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCoreMirror))
	}
	return slog.Default().With(slog.String("job", TaskCoreMirror))
}

func (j *CoreMirrorJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CoreMirrorJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
