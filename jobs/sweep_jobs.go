package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pharmatrade/pharmatrade/internal/jobs"
	"github.com/pharmatrade/pharmatrade/internal/sweep"
)

// SweepJobs adapts the sweep service to asynq handlers.
type SweepJobs struct {
	service *sweep.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSweepJobs constructs the handlers.
func NewSweepJobs(service *sweep.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJobs {
	return &SweepJobs{service: service, logger: logger, metrics: metrics}
}

// HandleExpiry processes TaskSweepExpiry.
func (j *SweepJobs) HandleExpiry(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("sweep_expiry")
	res, err := j.service.RunExpiryScan(ctx)
	if err != nil {
		j.logger.Error("expiry sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddAlerts("expiry", res.ExpiryNotified)
	j.logger.Info("expiry sweep done",
		slog.Int("notified", res.ExpiryNotified),
		slog.Int("skipped", res.Skipped))
	return tracker.End(nil)
}

// HandleLowStock processes TaskSweepLowStock.
func (j *SweepJobs) HandleLowStock(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("sweep_low_stock")
	res, err := j.service.RunLowStockScan(ctx)
	if err != nil {
		j.logger.Error("low stock sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddAlerts("low_stock", res.LowStockNotified)
	j.logger.Info("low stock sweep done",
		slog.Int("notified", res.LowStockNotified),
		slog.Int("skipped", res.Skipped))
	return tracker.End(nil)
}
