package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/coopfin/backoffice/jobs"
)

// JobQueue enqueues back-office tasks.
type JobQueue interface {
	EnqueueCoreMirror(ctx context.Context, lookbackDays int) (string, error)
	EnqueueAnalyticsWarmup(ctx context.Context, payload jobs.AnalyticsWarmupPayload) (string, error)
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the asynq queue.
type JobsCLI struct {
	queue     JobQueue
	inspector QueueInspector
}

// NewJobsCLI wires the helpers.
func NewJobsCLI(queue JobQueue, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{queue: queue, inspector: inspector}
}

// TriggerMirror enqueues a core mirror pass. lookbackDays <= 0 lets the worker apply
// its configured default.
func (c *JobsCLI) TriggerMirror(ctx context.Context, lookbackDays int) (string, error) {
	if c == nil || c.queue == nil {
		return "", errors.New("jobs cli: queue not configured")
	}
	return c.queue.EnqueueCoreMirror(ctx, lookbackDays)
}

// TriggerWarmup enqueues an analytics warmup for offices, or every office when empty.
func (c *JobsCLI) TriggerWarmup(ctx context.Context, offices []string, months int) (string, error) {
	if c == nil || c.queue == nil {
		return "", errors.New("jobs cli: queue not configured")
	}
	return c.queue.EnqueueAnalyticsWarmup(ctx, jobs.AnalyticsWarmupPayload{Offices: offices, Months: months})
}

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Upcoming  []string
}

// InspectQueue reports the default queue state and the next scheduled task types.
func (c *JobsCLI) InspectQueue(ctx context.Context, size int) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Archived = info.Archived

	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return QueueStats{}, err
	}
	for _, t := range tasks {
		stats.Upcoming = append(stats.Upcoming, t.Type)
	}
	return stats, nil
}
