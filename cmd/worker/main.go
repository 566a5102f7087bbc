package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-assets/internal/accounting"
	"github.com/odyssey-erp/odyssey-assets/internal/app"
	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-assets/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-assets/internal/jobs"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
	"github.com/odyssey-erp/odyssey-assets/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Period locks are shared with the API process.
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	accountingService := accounting.NewService(accounting.NewRepository(pool), auditLogger)
	service := fixedassets.NewService(
		fixedassets.NewRepository(pool),
		integration.NewDepreciationLedger(accountingService),
		shared.NewRedisPeriodLocker(redisClient, cfg.LockTTL, cfg.LockWait),
		fixedassets.ServiceConfig{
			Accounts: fixedassets.DefaultAccounts{
				Expense:     cfg.DepreciationExpenseAccount,
				Accumulated: cfg.AccumulatedDepreciationAccount,
			},
			Workers: cfg.CalcWorkers,
			Logger:  logger,
			Audit:   auditLogger,
		},
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	depreciationJob := jobs.NewDepreciationJob(service, client, logger, jobmetrics.NewMetrics(nil))

	scheduleTask, err := jobs.NewDepreciationScheduleTask(jobs.DepreciationSchedulePayload{})
	if err != nil {
		logger.Error("build schedule task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDepreciationSchedule, Handler: depreciationJob.HandleSchedule},
			{Type: jobs.TaskDepreciationCalculate, Handler: depreciationJob.HandleCalculate},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DepreciationCron, Task: scheduleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("cron", cfg.DepreciationCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
