package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLoanAccrual posts periodic accrual transactions up to a date.
	TaskLoanAccrual = "loan:accrual"
	// TaskLoanCOB runs the end-of-day close-of-business pipeline for a date.
	TaskLoanCOB = "loan:cob"
	// TaskDelinquencyRefresh recomputes and re-caches delinquency results.
	TaskDelinquencyRefresh = "loan:delinquency_refresh"
)

// DatePayload carries the business date a batch job runs for. Cron
// registrations enqueue an empty payload; an empty date resolves to the
// current UTC day at execution time.
type DatePayload struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (p DatePayload) resolveDate() (time.Time, string, error) {
	if p.Date == "" {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		return now, now.Format("2006-01-02"), nil
	}
	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		return time.Time{}, "", err
	}
	return date, p.Date, nil
}

// NewAccrualTask constructs the accrual task for a date.
func NewAccrualTask(payload DatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoanAccrual, data), nil
}

// NewCOBTask constructs the close-of-business task for a date.
func NewCOBTask(payload DatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoanCOB, data), nil
}

// NewDelinquencyRefreshTask constructs the delinquency refresh task.
func NewDelinquencyRefreshTask(payload DatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDelinquencyRefresh, data), nil
}
