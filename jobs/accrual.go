package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/lumenfin/loanledger/internal/jobs"
	"github.com/lumenfin/loanledger/internal/loan"
)

// LoanStore is the aggregate access the batch jobs need.
type LoanStore interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
	Mutate(ctx context.Context, loanID int64, fn func(*loan.Account) error) error
}

// Accruer posts accrual transactions through the ledger service.
type Accruer interface {
	Accrue(acc *loan.Account, interest decimal.Decimal, date time.Time) (*loan.Transaction, error)
}

// AccrualJob posts periodic interest accrual transactions. Reruns for the
// same date are no-ops: the ledger rejects a second accrual per (loan,
// date) and the job treats that as success.
type AccrualJob struct {
	Store       LoanStore
	Ledger      Accruer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewAccrualJob initialises the accrual handler.
func NewAccrualJob(store LoanStore, ledger Accruer, logger *slog.Logger, concurrency int) *AccrualJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AccrualJob{Store: store, Ledger: ledger, Logger: logger, Concurrency: concurrency}
}

// Handle executes the accrual run.
func (j *AccrualJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskLoanAccrual)
	return tracker.End(j.run(ctx, t))
}

func (j *AccrualJob) run(ctx context.Context, t *asynq.Task) error {
	var payload DatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date, dateStr, err := payload.resolveDate()
	if err != nil {
		return asynq.SkipRetry
	}
	ids, err := j.Store.ListActiveIDs(ctx)
	if err != nil {
		return err
	}
	j.Logger.Info("starting accrual run", slog.String("date", dateStr), slog.Int("loans", len(ids)))
	var posted, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := j.Store.Mutate(gctx, id, func(acc *loan.Account) error {
				interest := accrualInterestFor(acc, date)
				if !interest.IsPositive() {
					skipped.Add(1)
					return nil
				}
				_, err := j.Ledger.Accrue(acc, interest, date)
				if errors.Is(err, loan.ErrDuplicateAccrual) {
					skipped.Add(1)
					return nil
				}
				if err == nil {
					posted.Add(1)
				}
				return err
			})
			if err != nil {
				j.Logger.Error("accrual failed", slog.Int64("loan_id", id), slog.Any("error", err))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.Metrics.AddLoans(TaskLoanAccrual, "posted", posted.Load())
	j.Metrics.AddLoans(TaskLoanAccrual, "skipped", skipped.Load())
	j.Logger.Info("completed accrual run",
		slog.String("date", dateStr),
		slog.Int64("posted", posted.Load()),
		slog.Int64("skipped", skipped.Load()))
	return nil
}

// accrualInterestFor recognises the interest of installments whose period
// ends on the accrual date.
func accrualInterestFor(acc *loan.Account, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, ins := range acc.Installments {
		if sameDate(ins.DueDate, date) {
			total = total.Add(ins.Due.Interest)
		}
	}
	return total
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
