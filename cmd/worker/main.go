package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/app"
	jobmetrics "github.com/pharmatrade/pharmatrade/internal/jobs"
	"github.com/pharmatrade/pharmatrade/internal/notification"
	"github.com/pharmatrade/pharmatrade/internal/sweep"
	"github.com/pharmatrade/pharmatrade/jobs"
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

	notificationService := notification.NewService(notification.NewRepository(pool))
	sweepService := sweep.NewService(sweep.NewRepository(pool), notificationService, logger, cfg.ExpiryWindow())

	metrics := jobmetrics.NewMetrics(nil)
	sweepJobs := jobs.NewSweepJobs(sweepService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSweepExpiry, Handler: sweepJobs.HandleExpiry},
			{Type: jobs.TaskSweepLowStock, Handler: sweepJobs.HandleLowStock},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepExpiryCron, Task: jobs.NewSweepExpiryTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.SweepLowStockCron, Task: jobs.NewSweepLowStockTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
