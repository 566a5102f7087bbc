package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDepreciationSchedule fans out monthly calculation to every company with active assets.
	TaskDepreciationSchedule = "depreciation:schedule"
	// TaskDepreciationCalculate calculates one company period.
	TaskDepreciationCalculate = "depreciation:calculate"
)

// DepreciationSchedulePayload selects the period to schedule. A zero period means the
// month before the run date.
type DepreciationSchedulePayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// DepreciationCalculatePayload identifies the company period to calculate.
type DepreciationCalculatePayload struct {
	CompanyID int64 `json:"company_id"`
	Year      int   `json:"year"`
	Month     int   `json:"month"`
}

// Validate checks the payload before it is queued or processed.
func (p DepreciationCalculatePayload) Validate() error {
	if p.CompanyID <= 0 {
		return fmt.Errorf("depreciation task: company id must be positive")
	}
	if p.Year < 1900 || p.Year > 9999 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("depreciation task: invalid period %04d-%02d", p.Year, p.Month)
	}
	return nil
}

// NewDepreciationScheduleTask constructs the fan-out task.
func NewDepreciationScheduleTask(payload DepreciationSchedulePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationSchedule, body, asynq.Queue(QueueDefault)), nil
}

// NewDepreciationCalculateTask constructs a calculation task. Identical payloads are
// deduplicated for an hour so a re-run schedule does not stack work.
func NewDepreciationCalculateTask(payload DepreciationCalculatePayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationCalculate, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Unique(time.Hour),
	), nil
}
