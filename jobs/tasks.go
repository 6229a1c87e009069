package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCoreMirror copies core banking balances into the local ledger mirror.
	TaskCoreMirror = "coresync:mirror"
	// TaskAnalyticsWarmup prebuilds cached KPI series and trend reports.
	TaskAnalyticsWarmup = "analytics:warmup"

	mirrorUniqueFor = 5 * time.Minute
)

// CoreMirrorPayload selects how far back balances are copied.
type CoreMirrorPayload struct {
	LookbackDays int `json:"lookback_days"`
}

// NewCoreMirrorTask constructs a mirror task. Duplicate tasks enqueued within five
// minutes are rejected by the queue.
func NewCoreMirrorTask(payload CoreMirrorPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCoreMirror, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Unique(mirrorUniqueFor)), nil
}

// AnalyticsWarmupPayload lists the offices to warm; empty means every mirrored office.
type AnalyticsWarmupPayload struct {
	Offices []string `json:"offices,omitempty"`
	Months  int      `json:"months,omitempty"`
}

// NewAnalyticsWarmupTask constructs a warmup task.
func NewAnalyticsWarmupTask(payload AnalyticsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
