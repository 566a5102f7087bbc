package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/accounting"
	"github.com/odyssey-erp/odyssey-assets/internal/app"
	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
	fixedassetshttp "github.com/odyssey-erp/odyssey-assets/internal/fixedassets/http"
	"github.com/odyssey-erp/odyssey-assets/internal/integration"
	"github.com/odyssey-erp/odyssey-assets/internal/observability"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
	"github.com/odyssey-erp/odyssey-assets/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:], os.Stdout, os.Stderr))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, dbpool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	locker, closeLocker := newPeriodLocker(ctx, cfg, logger)
	defer closeLocker()

	metrics := observability.NewMetrics()
	service := newDepreciationService(dbpool, locker, cfg, logger, metrics)
	assetsHandler := fixedassetshttp.NewHandler(logger, service, fixedassetshttp.Options{
		PostRateLimit: cfg.PostRateLimit,
		RetryAfter:    cfg.LockWait,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AssetsHandler: assetsHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
		DB:            dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// newPeriodLocker prefers the shared Redis lock and falls back to an in-process lock
// when Redis is unreachable, which only serialises callers within this process.
func newPeriodLocker(ctx context.Context, cfg *app.Config, logger *slog.Logger) (fixedassets.Locker, func()) {
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, using in-process period locks", slog.Any("error", err))
		return shared.NewLocalPeriodLocker(cfg.LockWait), func() {}
	}
	return shared.NewRedisPeriodLocker(client, cfg.LockTTL, cfg.LockWait), func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
}

func newDepreciationService(pool *pgxpool.Pool, locker fixedassets.Locker, cfg *app.Config, logger *slog.Logger, metrics *observability.Metrics) *fixedassets.Service {
	auditLogger := shared.NewAuditLogger(pool)
	accountingService := accounting.NewService(accounting.NewRepository(pool), auditLogger)
	ledger := integration.NewDepreciationLedger(accountingService)
	return fixedassets.NewService(fixedassets.NewRepository(pool), ledger, locker, fixedassets.ServiceConfig{
		Accounts: fixedassets.DefaultAccounts{
			Expense:     cfg.DepreciationExpenseAccount,
			Accumulated: cfg.AccumulatedDepreciationAccount,
		},
		Workers: cfg.CalcWorkers,
		Logger:  logger,
		Audit:   auditLogger,
		Metrics: metrics,
	})
}
