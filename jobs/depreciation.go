package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
	jobmetrics "github.com/odyssey-erp/odyssey-assets/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DepreciationService is the part of the depreciation service driven by jobs.
type DepreciationService interface {
	CalculatePeriod(ctx context.Context, companyID int64, year, month int) (fixedassets.CalculationResult, error)
	CompaniesWithActiveAssets(ctx context.Context) ([]int64, error)
}

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DepreciationJob runs scheduled and on-demand depreciation calculation.
// Posting is never triggered from here.
type DepreciationJob struct {
	Service  DepreciationService
	Enqueuer Enqueuer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewDepreciationJob constructs the job handlers.
func NewDepreciationJob(service DepreciationService, enqueuer Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepreciationJob {
	return &DepreciationJob{
		Service:  service,
		Enqueuer: enqueuer,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleSchedule enqueues one calculation task per company holding active assets.
func (j *DepreciationJob) HandleSchedule(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil || j.Enqueuer == nil {
		return errors.New("depreciation schedule: dependencies not configured")
	}
	var payload DepreciationSchedulePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.metrics().Track(TaskDepreciationSchedule)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	year, month := payload.Year, payload.Month
	if year == 0 && month == 0 {
		prev := fixedassets.PeriodOf(j.now()).Prev()
		year, month = prev.Year, prev.Month
	}
	companies, err := j.Service.CompaniesWithActiveAssets(ctx)
	if err != nil {
		j.log(TaskDepreciationSchedule).Error("list companies", slog.Any("error", err))
		return err
	}
	enqueued := 0
	for _, companyID := range companies {
		calc, err := NewDepreciationCalculateTask(DepreciationCalculatePayload{CompanyID: companyID, Year: year, Month: month})
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if _, err := j.Enqueuer.EnqueueContext(ctx, calc); err != nil {
			if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
				continue
			}
			j.log(TaskDepreciationSchedule).Error("enqueue calculation", slog.Int64("company_id", companyID), slog.Any("error", err))
			return err
		}
		enqueued++
	}
	j.metrics().AddEnqueued(TaskDepreciationSchedule, enqueued)
	j.log(TaskDepreciationSchedule).Info("scheduled depreciation calculation",
		slog.String("period", fmt.Sprintf("%04d-%02d", year, month)),
		slog.Int("companies", len(companies)),
		slog.Int("enqueued", enqueued))
	return nil
}

// HandleCalculate calculates one company period. A period that was posted in the
// meantime is treated as done.
func (j *DepreciationJob) HandleCalculate(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("depreciation calculate: dependencies not configured")
	}
	var payload DepreciationCalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskDepreciationCalculate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log(TaskDepreciationCalculate).With(
		slog.Int64("company_id", payload.CompanyID),
		slog.String("period", fmt.Sprintf("%04d-%02d", payload.Year, payload.Month)))

	res, err := j.Service.CalculatePeriod(ctx, payload.CompanyID, payload.Year, payload.Month)
	switch {
	case errors.Is(err, fixedassets.ErrPeriodAlreadyPosted):
		logger.Info("period already posted, nothing to calculate")
		return nil
	case errors.Is(err, fixedassets.ErrInvalidPeriod):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		logger.Error("calculate depreciation", slog.Any("error", err))
		return err
	}
	if w := task.ResultWriter(); w != nil {
		if body, err := json.Marshal(res); err == nil {
			_, _ = w.Write(body)
		}
	}
	logger.Info("calculated depreciation",
		slog.Int("calculated", len(res.Calculated)),
		slog.Int("errors", len(res.Errors)),
		slog.String("total_accounting", res.TotalAccountingAmount.StringFixed(2)))
	return nil
}

func (j *DepreciationJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DepreciationJob) log(task string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *DepreciationJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DepreciationJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
