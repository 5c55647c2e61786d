package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines persistence required by the ledger service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, pharmacyID, medicineID int64) (Record, error)
	GetByID(ctx context.Context, id int64) (Record, error)
	List(ctx context.Context, filter Filter, page shared.Pagination) ([]Record, int, error)
	SearchAvailable(ctx context.Context, medicineID, excludePharmacyID int64, page shared.Pagination) ([]Record, int, error)
	Delete(ctx context.Context, id, pharmacyID int64) error
}

// NotifierPort lets the ledger retract a low stock alert once stock
// normalizes. Implemented by the notification service.
type NotifierPort interface {
	RetractLowStock(ctx context.Context, pharmacyID, medicineID int64) error
}

// Service guards the reservation invariants of the stock ledger.
type Service struct {
	repo     RepositoryPort
	notifier NotifierPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, notifier NotifierPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// Conflicting ledger writes are retried this many times before giving up.
const txAttempts = 3

func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}
		err = s.repo.WithTx(ctx, fn)
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

// Reserve places a hold on stock for an in-flight trade.
func (s *Service) Reserve(ctx context.Context, pharmacyID, medicineID int64, qty int) (Record, error) {
	var out Record
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, pharmacyID, medicineID)
		if err != nil {
			return err
		}
		if err := rec.ApplyReserve(qty, s.now()); err != nil {
			return err
		}
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Release drops a hold, clamped so the reservation never goes negative.
func (s *Service) Release(ctx context.Context, pharmacyID, medicineID int64, qty int) (Record, error) {
	var out Record
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, pharmacyID, medicineID)
		if err != nil {
			return err
		}
		if err := rec.ApplyRelease(qty, s.now()); err != nil {
			return err
		}
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// CommitInput describes one traded line moving between two pharmacies.
type CommitInput struct {
	SellerPharmacyID int64
	BuyerPharmacyID  int64
	MedicineID       int64
	Quantity         int
	UnitPrice        float64
	Currency         string
	BatchNumber      string
	ExpiryDate       time.Time
}

// Commit moves reserved stock from seller to buyer as one unit. The buyer
// record is created when the buyer has never stocked the medicine.
func (s *Service) Commit(ctx context.Context, in CommitInput) error {
	return s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		return CommitLine(ctx, tx, in, s.now())
	})
}

// CommitLine applies a two-sided trade commit inside an existing transaction.
// Shared with the trading service so a multi-line trade settles atomically.
func CommitLine(ctx context.Context, tx TxRepository, in CommitInput, now time.Time) error {
	seller, err := tx.GetForUpdate(ctx, in.SellerPharmacyID, in.MedicineID)
	if err != nil {
		return err
	}
	if err := seller.ApplyDeduct(in.Quantity, now); err != nil {
		return err
	}
	if err := tx.Update(ctx, seller); err != nil {
		return err
	}

	buyer, err := tx.GetForUpdate(ctx, in.BuyerPharmacyID, in.MedicineID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		created := Record{
			PharmacyID:    in.BuyerPharmacyID,
			MedicineID:    in.MedicineID,
			Quantity:      in.Quantity,
			MinStockLevel: seller.MinStockLevel,
			MaxStockLevel: seller.MaxStockLevel,
			UnitPrice:     in.UnitPrice,
			Currency:      in.Currency,
			BatchNumber:   in.BatchNumber,
			ExpiryDate:    in.ExpiryDate,
		}
		created.Recompute(now)
		_, err = tx.Create(ctx, created)
		return err
	case err != nil:
		return err
	}
	if err := buyer.ApplyCredit(in.Quantity, now); err != nil {
		return err
	}
	buyer.BatchNumber = in.BatchNumber
	if !in.ExpiryDate.IsZero() {
		buyer.ExpiryDate = in.ExpiryDate
	}
	return tx.Update(ctx, buyer)
}

// RestockInput adds stock for a (pharmacy, medicine) pair, creating the
// record on first intake.
type RestockInput struct {
	MedicineID    int64
	Quantity      int
	MinStockLevel int
	MaxStockLevel int
	UnitPrice     float64
	Currency      string
	BatchNumber   string
	ExpiryDate    time.Time
}

// Restock adds stock and, when the record leaves the low stock band, clears
// the debounce flag and retracts the open alert.
func (s *Service) Restock(ctx context.Context, actor shared.Actor, in RestockInput) (Record, error) {
	if in.Quantity <= 0 {
		return Record{}, fmt.Errorf("inventory: restock quantity must be positive: %w", shared.ErrValidation)
	}
	var out Record
	var normalized bool
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		normalized = false
		rec, err := tx.GetForUpdate(ctx, actor.PharmacyID, in.MedicineID)
		if errors.Is(err, shared.ErrNotFound) {
			rec = Record{
				PharmacyID:    actor.PharmacyID,
				MedicineID:    in.MedicineID,
				Quantity:      in.Quantity,
				MinStockLevel: in.MinStockLevel,
				MaxStockLevel: in.MaxStockLevel,
				UnitPrice:     in.UnitPrice,
				Currency:      in.Currency,
				BatchNumber:   in.BatchNumber,
				ExpiryDate:    in.ExpiryDate,
			}
			rec.Recompute(s.now())
			id, err := tx.Create(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = id
			out = rec
			return nil
		}
		if err != nil {
			return err
		}
		normalized, err = rec.ApplyRestock(in.Quantity, s.now())
		if err != nil {
			return err
		}
		if in.UnitPrice > 0 {
			rec.UnitPrice = in.UnitPrice
		}
		if in.BatchNumber != "" {
			rec.BatchNumber = in.BatchNumber
		}
		if !in.ExpiryDate.IsZero() {
			rec.ExpiryDate = in.ExpiryDate
			rec.NotificationSent = false
			rec.Recompute(s.now())
		}
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if normalized && s.notifier != nil {
		if err := s.notifier.RetractLowStock(ctx, out.PharmacyID, out.MedicineID); err != nil {
			s.logger.Error("retract low stock alert",
				slog.Int64("pharmacy_id", out.PharmacyID),
				slog.Int64("medicine_id", out.MedicineID),
				slog.Any("error", err))
		}
	}
	return out, nil
}

// UpdateLevelsInput adjusts thresholds and pricing without touching stock.
type UpdateLevelsInput struct {
	MinStockLevel *int
	MaxStockLevel *int
	UnitPrice     *float64
}

// UpdateLevels edits threshold and price fields on an owned record.
func (s *Service) UpdateLevels(ctx context.Context, actor shared.Actor, recordID int64, in UpdateLevelsInput) (Record, error) {
	existing, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if existing.PharmacyID != actor.PharmacyID {
		return Record{}, fmt.Errorf("inventory: record %d not owned by pharmacy %d: %w", recordID, actor.PharmacyID, shared.ErrForbidden)
	}
	var out Record
	err = s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, existing.PharmacyID, existing.MedicineID)
		if err != nil {
			return err
		}
		if in.MinStockLevel != nil {
			if *in.MinStockLevel < 0 {
				return fmt.Errorf("inventory: min stock level must not be negative: %w", shared.ErrValidation)
			}
			rec.MinStockLevel = *in.MinStockLevel
		}
		if in.MaxStockLevel != nil {
			rec.MaxStockLevel = *in.MaxStockLevel
		}
		if in.UnitPrice != nil {
			if *in.UnitPrice < 0 {
				return fmt.Errorf("inventory: unit price must not be negative: %w", shared.ErrValidation)
			}
			rec.UnitPrice = *in.UnitPrice
		}
		rec.Recompute(s.now())
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Get returns an owned record by id.
func (s *Service) Get(ctx context.Context, actor shared.Actor, recordID int64) (Record, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if rec.PharmacyID != actor.PharmacyID {
		return Record{}, fmt.Errorf("inventory: record %d not owned by pharmacy %d: %w", recordID, actor.PharmacyID, shared.ErrForbidden)
	}
	return rec, nil
}

// List returns the acting pharmacy's records.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter Filter, page shared.Pagination) ([]Record, int, error) {
	filter.PharmacyID = actor.PharmacyID
	return s.repo.List(ctx, filter, page)
}

// SearchAvailable lists stock other pharmacies offer for a medicine.
func (s *Service) SearchAvailable(ctx context.Context, actor shared.Actor, medicineID int64, page shared.Pagination) ([]Record, int, error) {
	if medicineID <= 0 {
		return nil, 0, fmt.Errorf("inventory: medicine id required: %w", shared.ErrValidation)
	}
	return s.repo.SearchAvailable(ctx, medicineID, actor.PharmacyID, page)
}

// Remove deletes an owned record. Records with open reservations are kept.
func (s *Service) Remove(ctx context.Context, actor shared.Actor, recordID int64) error {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.PharmacyID != actor.PharmacyID {
		return fmt.Errorf("inventory: record %d not owned by pharmacy %d: %w", recordID, actor.PharmacyID, shared.ErrForbidden)
	}
	if rec.ReservedQuantity > 0 {
		return fmt.Errorf("inventory: record %d holds an open reservation: %w", recordID, shared.ErrInvalidTransition)
	}
	return s.repo.Delete(ctx, recordID, actor.PharmacyID)
}
