package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-assets/jobs"
)

// Inspector is the queue introspection used by the CLI; *asynq.Inspector satisfies it.
type Inspector interface {
	jobs.QueueInspector
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	jobs.Enqueuer
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return NewJobsCLIWith(asynq.NewClient(opts), asynq.NewInspector(opts)), nil
}

// NewJobsCLIWith builds the helpers around existing collaborators.
func NewJobsCLIWith(client Enqueuer, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// CalculateOptions configures `jobs calculate`.
type CalculateOptions struct {
	CompanyID  int64
	Period     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ScheduleOptions configures `jobs schedule`. An empty period means the previous month.
type ScheduleOptions struct {
	Period     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type enqueueSummary struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Queue  string `json:"queue"`
}

// CalculateCommand enqueues a depreciation calculation for one company period.
func (c *JobsCLI) CalculateCommand(ctx context.Context, opts CalculateOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if opts.CompanyID <= 0 {
		_, _ = fmt.Fprintln(stderr, "jobs calculate: --company is required and must be positive")
		return 1
	}
	period, err := parsePeriod(opts.Period)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs calculate: invalid period %q (expected YYYY-MM)\n", opts.Period)
		return 1
	}
	task, err := jobs.NewDepreciationCalculateTask(jobs.DepreciationCalculatePayload{
		CompanyID: opts.CompanyID,
		Year:      period.Year(),
		Month:     int(period.Month()),
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs calculate: %v\n", err)
		return 1
	}
	return c.enqueue(ctx, task, opts.JSONOutput, stdout, stderr, "jobs calculate")
}

// ScheduleCommand enqueues the fan-out calculation for every company.
func (c *JobsCLI) ScheduleCommand(ctx context.Context, opts ScheduleOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	payload := jobs.DepreciationSchedulePayload{}
	if strings.TrimSpace(opts.Period) != "" {
		period, err := parsePeriod(opts.Period)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs schedule: invalid period %q (expected YYYY-MM)\n", opts.Period)
			return 1
		}
		payload.Year, payload.Month = period.Year(), int(period.Month())
	}
	task, err := jobs.NewDepreciationScheduleTask(payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs schedule: %v\n", err)
		return 1
	}
	return c.enqueue(ctx, task, opts.JSONOutput, stdout, stderr, "jobs schedule")
}

func (c *JobsCLI) enqueue(ctx context.Context, task *asynq.Task, jsonOut bool, stdout, stderr io.Writer, cmd string) int {
	if c == nil || c.client == nil {
		_, _ = fmt.Fprintf(stderr, "%s: client not configured\n", cmd)
		return 1
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			_, _ = fmt.Fprintf(stderr, "%s: an identical task is already queued\n", cmd)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	summary := enqueueSummary{TaskID: info.ID, Type: info.Type, Queue: info.Queue}
	if jsonOut {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: encode json: %v\n", cmd, err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", summary.Type, summary.TaskID, summary.Queue)
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func parsePeriod(raw string) (time.Time, error) {
	return time.Parse("2006-01", strings.TrimSpace(raw))
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
