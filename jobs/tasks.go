package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSweepExpiry scans the ledger for stock nearing expiry.
	TaskSweepExpiry = "sweep:expiry"
	// TaskSweepLowStock scans the ledger for stock under its minimum level.
	TaskSweepLowStock = "sweep:low_stock"
)

// NewSweepExpiryTask constructs the expiry scan task.
func NewSweepExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskSweepExpiry, nil)
}

// NewSweepLowStockTask constructs the low stock scan task.
func NewSweepLowStockTask() *asynq.Task {
	return asynq.NewTask(TaskSweepLowStock, nil)
}
