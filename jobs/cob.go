package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/lumenfin/loanledger/internal/jobs"
	"github.com/lumenfin/loanledger/internal/loan"
)

// CacheBumper invalidates cached delinquency classifications.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// COBJob is the end-of-day close-of-business pipeline: per loan it
// recomputes the aggregate status against the ledger invariants, then
// invalidates stale delinquency classifications. Each loan's unit of work
// commits or rolls back atomically; loans are independent and processed
// with bounded parallelism.
type COBJob struct {
	Store       LoanStore
	Cache       CacheBumper
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewCOBJob initialises the close-of-business handler.
func NewCOBJob(store LoanStore, cache CacheBumper, logger *slog.Logger, concurrency int) *COBJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &COBJob{Store: store, Cache: cache, Logger: logger, Concurrency: concurrency}
}

// Handle executes the close-of-business run.
func (j *COBJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskLoanCOB)
	return tracker.End(j.run(ctx, t))
}

func (j *COBJob) run(ctx context.Context, t *asynq.Task) error {
	var payload DatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, dateStr, err := payload.resolveDate()
	if err != nil {
		return asynq.SkipRetry
	}
	ids, err := j.Store.ListActiveIDs(ctx)
	if err != nil {
		return err
	}
	j.Logger.Info("starting loan COB", slog.String("date", dateStr), slog.Int("loans", len(ids)))
	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := j.Store.Mutate(gctx, id, func(acc *loan.Account) error {
				acc.RecomputeStatus()
				return acc.CheckInvariants()
			})
			if err != nil {
				j.Logger.Error("loan COB failed", slog.Int64("loan_id", id), slog.Any("error", err))
				return err
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if j.Cache != nil {
		if err := j.Cache.Bump(ctx); err != nil {
			j.Logger.Warn("delinquency cache bump", slog.Any("error", err))
		}
	}
	j.Metrics.AddLoans(TaskLoanCOB, "processed", processed.Load())
	j.Logger.Info("completed loan COB",
		slog.String("date", dateStr),
		slog.Int64("processed", processed.Load()))
	return nil
}
