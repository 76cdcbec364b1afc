package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lumenfin/loanledger/internal/app"
	"github.com/lumenfin/loanledger/internal/delinquency"
	jobmetrics "github.com/lumenfin/loanledger/internal/jobs"
	"github.com/lumenfin/loanledger/internal/ledger"
	"github.com/lumenfin/loanledger/internal/observability"
	"github.com/lumenfin/loanledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	loanRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(logger)

	bucketRepo := delinquency.NewRepository(pool)
	delinquencyCache := delinquency.NewCache(redisClient, cfg.DelinquencyCacheTTL)

	metrics := observability.NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())

	accrualJob := jobs.NewAccrualJob(loanRepo, ledgerService, logger, cfg.COBConcurrency)
	accrualJob.Metrics = jm
	cobJob := jobs.NewCOBJob(loanRepo, delinquencyCache, logger, cfg.COBConcurrency)
	cobJob.Metrics = jm
	refreshJob := jobs.NewDelinquencyRefreshJob(loanRepo, bucketRepo, delinquencyCache, delinquency.Options{}, logger, cfg.COBConcurrency)
	refreshJob.Metrics = jm

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		logger.Info("starting metrics listener", slog.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics listener", slog.Any("error", err))
		}
	}()

	// Cron tasks carry an empty payload; the handlers resolve it to the
	// current UTC day when the task runs.
	accrualTask, err := jobs.NewAccrualTask(jobs.DatePayload{})
	if err != nil {
		logger.Error("build accrual task", slog.Any("error", err))
		os.Exit(1)
	}
	cobTask, err := jobs.NewCOBTask(jobs.DatePayload{})
	if err != nil {
		logger.Error("build cob task", slog.Any("error", err))
		os.Exit(1)
	}
	refreshTask, err := jobs.NewDelinquencyRefreshTask(jobs.DatePayload{})
	if err != nil {
		logger.Error("build delinquency refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLoanAccrual, Handler: accrualJob.Handle},
			{Type: jobs.TaskLoanCOB, Handler: cobJob.Handle},
			{Type: jobs.TaskDelinquencyRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 0 * * *", Task: accrualTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 1 * * *", Task: cobTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
