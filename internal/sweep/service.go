// Package sweep runs the periodic expiry and low stock scans. Both scans are
// idempotent across runs: the persisted debounce flags on the ledger records
// decide whether an alert fires, never the sweep cadence.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/notification"
)

// Candidate is one ledger record due for an alert, joined with the owning
// user. OwnerUserID is zero for orphaned records.
type Candidate struct {
	Record       inventory.Record
	OwnerUserID  int64
	MedicineName string
}

// RepositoryPort defines the scan queries.
type RepositoryPort interface {
	ListExpiring(ctx context.Context, within time.Duration, limit int) ([]Candidate, error)
	ListUnderStock(ctx context.Context, limit int) ([]Candidate, error)
	MarkExpiryNotified(ctx context.Context, recordID int64) error
	MarkLowStockNotified(ctx context.Context, recordID int64) error
}

// NotifierPort dispatches sweep alerts.
type NotifierPort interface {
	Notify(ctx context.Context, recipientID int64, in notification.NotifyInput) (notification.Notification, error)
}

// Result summarizes one sweep run.
type Result struct {
	ExpiryNotified   int `json:"expiryNotified"`
	LowStockNotified int `json:"lowStockNotified"`
	Skipped          int `json:"skipped"`
}

// Service coordinates the two scans.
type Service struct {
	repo     RepositoryPort
	notifier NotifierPort
	logger   *slog.Logger
	window   time.Duration
	batch    int
}

// NewService builds Service instance. window is how far ahead the expiry scan
// looks; zero defaults to 30 days.
func NewService(repo RepositoryPort, notifier NotifierPort, logger *slog.Logger, window time.Duration) *Service {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, window: window, batch: 500}
}

// Run executes both scans concurrently and merges their tallies.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var expiry, lowStock Result
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expiry, err = s.RunExpiryScan(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		lowStock, err = s.RunLowStockScan(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{
		ExpiryNotified:   expiry.ExpiryNotified,
		LowStockNotified: lowStock.LowStockNotified,
		Skipped:          expiry.Skipped + lowStock.Skipped,
	}, nil
}

// RunExpiryScan alerts owners of stock expiring within the window. Orphaned
// records are skipped without setting the flag, so they are revisited on the
// next run.
func (s *Service) RunExpiryScan(ctx context.Context) (Result, error) {
	candidates, err := s.repo.ListExpiring(ctx, s.window, s.batch)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: list expiring: %w", err)
	}
	var res Result
	for _, c := range candidates {
		if c.OwnerUserID == 0 {
			s.logger.Warn("expiry scan: record has no owning user",
				slog.Int64("record_id", c.Record.ID),
				slog.Int64("pharmacy_id", c.Record.PharmacyID))
			res.Skipped++
			continue
		}
		name := c.MedicineName
		if name == "" {
			name = fmt.Sprintf("medicine %d", c.Record.MedicineID)
		}
		_, err := s.notifier.Notify(ctx, c.OwnerUserID, notification.NotifyInput{
			Title:   "Stock expiring soon",
			Message: fmt.Sprintf("%s (batch %s) expires on %s", name, c.Record.BatchNumber, c.Record.ExpiryDate.Format("2006-01-02")),
			Type:    notification.TypeExpiry,
			Data: notification.Data{
				InventoryID: &c.Record.ID,
				MedicineID:  &c.Record.MedicineID,
				PharmacyID:  &c.Record.PharmacyID,
				Alert:       notification.AlertExpiry,
			},
		})
		if err != nil {
			s.logger.Error("expiry scan: notify failed", slog.Int64("record_id", c.Record.ID), slog.Any("error", err))
			res.Skipped++
			continue
		}
		if err := s.repo.MarkExpiryNotified(ctx, c.Record.ID); err != nil {
			s.logger.Error("expiry scan: mark notified failed", slog.Int64("record_id", c.Record.ID), slog.Any("error", err))
			res.Skipped++
			continue
		}
		res.ExpiryNotified++
	}
	return res, nil
}

// RunLowStockScan alerts owners of records under their minimum level. The
// flag is only set here; restock clears it when stock normalizes.
func (s *Service) RunLowStockScan(ctx context.Context) (Result, error) {
	candidates, err := s.repo.ListUnderStock(ctx, s.batch)
	if err != nil {
		return Result{}, fmt.Errorf("sweep: list under stock: %w", err)
	}
	var res Result
	for _, c := range candidates {
		if c.OwnerUserID == 0 {
			s.logger.Warn("low stock scan: record has no owning user",
				slog.Int64("record_id", c.Record.ID),
				slog.Int64("pharmacy_id", c.Record.PharmacyID))
			res.Skipped++
			continue
		}
		name := c.MedicineName
		if name == "" {
			name = fmt.Sprintf("medicine %d", c.Record.MedicineID)
		}
		_, err := s.notifier.Notify(ctx, c.OwnerUserID, notification.NotifyInput{
			Title:   "Low stock",
			Message: fmt.Sprintf("%s is down to %d units (minimum %d)", name, c.Record.Quantity, c.Record.MinStockLevel),
			Type:    notification.TypeSystem,
			Data: notification.Data{
				InventoryID: &c.Record.ID,
				MedicineID:  &c.Record.MedicineID,
				PharmacyID:  &c.Record.PharmacyID,
				Alert:       notification.AlertLowStock,
			},
		})
		if err != nil {
			s.logger.Error("low stock scan: notify failed", slog.Int64("record_id", c.Record.ID), slog.Any("error", err))
			res.Skipped++
			continue
		}
		if err := s.repo.MarkLowStockNotified(ctx, c.Record.ID); err != nil {
			s.logger.Error("low stock scan: mark notified failed", slog.Int64("record_id", c.Record.ID), slog.Any("error", err))
			res.Skipped++
			continue
		}
		res.LowStockNotified++
	}
	return res, nil
}
