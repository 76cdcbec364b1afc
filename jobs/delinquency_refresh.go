package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/lumenfin/loanledger/internal/delinquency"
	jobmetrics "github.com/lumenfin/loanledger/internal/jobs"
	"github.com/lumenfin/loanledger/internal/loan"
)

// AccountLoader loads aggregates without locking.
type AccountLoader interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
	Load(ctx context.Context, loanID int64) (*loan.Account, error)
}

// DelinquencyRefreshJob recomputes delinquency for every active loan and
// warms the result cache. The classifier is a pure projection, so the job
// needs no locks and reruns are idempotent.
type DelinquencyRefreshJob struct {
	Store       AccountLoader
	Buckets     delinquency.BucketSource
	Cache       *delinquency.Cache
	Opts        delinquency.Options
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewDelinquencyRefreshJob initialises the refresh handler.
func NewDelinquencyRefreshJob(store AccountLoader, buckets delinquency.BucketSource, cache *delinquency.Cache, opts delinquency.Options, logger *slog.Logger, concurrency int) *DelinquencyRefreshJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DelinquencyRefreshJob{Store: store, Buckets: buckets, Cache: cache, Opts: opts, Logger: logger, Concurrency: concurrency}
}

// Handle executes the refresh run.
func (j *DelinquencyRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskDelinquencyRefresh)
	return tracker.End(j.run(ctx, t))
}

func (j *DelinquencyRefreshJob) run(ctx context.Context, t *asynq.Task) error {
	var payload DatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, dateStr, err := payload.resolveDate()
	if err != nil {
		return asynq.SkipRetry
	}
	ids, err := j.Store.ListActiveIDs(ctx)
	if err != nil {
		return err
	}
	if err := j.Cache.Bump(ctx); err != nil {
		j.Logger.Warn("delinquency cache bump", slog.Any("error", err))
	}
	j.Logger.Info("starting delinquency refresh", slog.String("as_of", dateStr), slog.Int("loans", len(ids)))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			key, err := j.Cache.Key(gctx, id, asOf)
			if err != nil {
				return err
			}
			var result delinquency.Result
			err = j.Cache.Fetch(gctx, key, &result, func(ctx context.Context) (delinquency.Result, error) {
				return j.classify(ctx, id, asOf)
			})
			if err != nil {
				j.Logger.Error("delinquency refresh failed", slog.Int64("loan_id", id), slog.Any("error", err))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.Logger.Info("completed delinquency refresh", slog.String("as_of", dateStr))
	return nil
}

func (j *DelinquencyRefreshJob) classify(ctx context.Context, loanID int64, asOf time.Time) (delinquency.Result, error) {
	acc, err := j.Store.Load(ctx, loanID)
	if err != nil {
		return delinquency.Result{}, err
	}
	var bucket *delinquency.Bucket
	if acc.DelinquencyBucketID != nil {
		bucket, err = j.Buckets.Bucket(ctx, *acc.DelinquencyBucketID)
		if err != nil {
			return delinquency.Result{}, err
		}
	}
	return delinquency.Classify(acc, bucket, asOf, j.Opts)
}
