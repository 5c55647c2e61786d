// Package inventory implements the per-pharmacy stock ledger. Every mutation
// keeps the reservation invariant 0 <= reserved <= quantity and recomputes the
// derived status inside the same write.
package inventory

import (
	"fmt"
	"time"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Stock status values derived from quantity and expiry.
const (
	StatusExpired    = "expired"
	StatusOutOfStock = "out_of_stock"
	StatusLowStock   = "low_stock"
	StatusInStock    = "in_stock"
)

// Record is the stock ledger entry for one (pharmacy, medicine) pair.
type Record struct {
	ID               int64     `json:"id"`
	PharmacyID       int64     `json:"pharmacyId"`
	MedicineID       int64     `json:"medicineId"`
	Quantity         int       `json:"quantity"`
	ReservedQuantity int       `json:"reservedQuantity"`
	MinStockLevel    int       `json:"minStockLevel"`
	MaxStockLevel    int       `json:"maxStockLevel"`
	UnitPrice        float64   `json:"unitPrice"`
	Currency         string    `json:"currency"`
	BatchNumber      string    `json:"batchNumber"`
	ExpiryDate       time.Time `json:"expiryDate"`
	Status           string    `json:"status"`

	// Debounce flags for sweep alerts. The sweep sets them, restock clears
	// the low stock one when the condition resolves.
	NotificationSent         bool `json:"notificationSent"`
	LowStockNotificationSent bool `json:"lowStockNotificationSent"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AvailableQuantity is quantity minus the reserved portion.
func (r *Record) AvailableQuantity() int {
	return r.Quantity - r.ReservedQuantity
}

// Recompute refreshes the derived status. Expiry wins over quantity.
func (r *Record) Recompute(now time.Time) {
	switch {
	case !r.ExpiryDate.IsZero() && r.ExpiryDate.Before(now):
		r.Status = StatusExpired
	case r.Quantity == 0:
		r.Status = StatusOutOfStock
	case r.Quantity <= r.MinStockLevel:
		r.Status = StatusLowStock
	default:
		r.Status = StatusInStock
	}
}

// ApplyReserve places a hold on qty units. It fails rather than clamps when
// availability is short.
func (r *Record) ApplyReserve(qty int, now time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: reserve quantity must be positive: %w", shared.ErrValidation)
	}
	if r.AvailableQuantity() < qty {
		return fmt.Errorf("inventory: %d available, %d requested: %w", r.AvailableQuantity(), qty, shared.ErrInsufficientStock)
	}
	r.ReservedQuantity += qty
	r.Recompute(now)
	return nil
}

// ApplyRelease removes a hold. The reservation never goes negative, so a
// release larger than the current hold drains it to zero.
func (r *Record) ApplyRelease(qty int, now time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: release quantity must be positive: %w", shared.ErrValidation)
	}
	if qty > r.ReservedQuantity {
		qty = r.ReservedQuantity
	}
	r.ReservedQuantity -= qty
	r.Recompute(now)
	return nil
}

// ApplyDeduct converts a reservation into a physical deduction on trade
// completion. The hold must cover the deduction.
func (r *Record) ApplyDeduct(qty int, now time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: deduct quantity must be positive: %w", shared.ErrValidation)
	}
	if qty > r.ReservedQuantity || qty > r.Quantity {
		return fmt.Errorf("inventory: deduction of %d exceeds held stock: %w", qty, shared.ErrConcurrencyConflict)
	}
	r.Quantity -= qty
	r.ReservedQuantity -= qty
	r.Recompute(now)
	return nil
}

// ApplyRestock adds delta units. It reports whether the record left the low
// stock band, in which case the caller must clear the debounce flag and
// retract the open alert.
func (r *Record) ApplyRestock(delta int, now time.Time) (normalized bool, err error) {
	if delta <= 0 {
		return false, fmt.Errorf("inventory: restock delta must be positive: %w", shared.ErrValidation)
	}
	r.Quantity += delta
	normalized = r.LowStockNotificationSent && r.Quantity > r.MinStockLevel
	if normalized {
		r.LowStockNotificationSent = false
	}
	r.Recompute(now)
	return normalized, nil
}

// ApplyCredit adds traded stock to the buying side on trade completion.
func (r *Record) ApplyCredit(qty int, now time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: credit quantity must be positive: %w", shared.ErrValidation)
	}
	r.Quantity += qty
	r.Recompute(now)
	return nil
}
