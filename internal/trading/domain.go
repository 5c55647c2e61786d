// Package trading owns the trade lifecycle between two pharmacies: the status
// state machine, the timeline audit trail and the ledger effects attached to
// each transition.
package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// transitions lists the legal edges of the status machine. Completed,
// cancelled and refunded are terminal apart from the administrative refund.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered},
	StatusDelivered: {StatusCompleted},
	StatusCompleted: {StatusRefunded},
}

// CanTransition reports whether from -> to is a legal single edge.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is one traded line.
type Item struct {
	MedicineID  int64     `json:"medicineId"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	TotalPrice  float64   `json:"totalPrice"`
	BatchNumber string    `json:"batchNumber,omitempty"`
	ExpiryDate  time.Time `json:"expiryDate,omitempty"`
}

// TimelineEntry records one accepted transition, including creation.
type TimelineEntry struct {
	Status    string    `json:"status"`
	Date      time.Time `json:"date"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy int64     `json:"updatedBy"`
}

// Rating is post-completion feedback left by the counterparty.
type Rating struct {
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	RatedBy   int64     `json:"ratedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transaction is one trade lifecycle instance.
type Transaction struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	SellerPharmacyID int64           `json:"sellerPharmacyId"`
	BuyerPharmacyID  int64           `json:"buyerPharmacyId"`
	SellerUserID     int64           `json:"sellerUserId"`
	BuyerUserID      int64           `json:"buyerUserId"`
	Items            []Item          `json:"items"`
	TotalAmount      float64         `json:"totalAmount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Status           string          `json:"status"`
	Timeline         []TimelineEntry `json:"timeline"`
	SellerRating     *Rating         `json:"sellerRating,omitempty"`
	BuyerRating      *Rating         `json:"buyerRating,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewCode mints a human-readable transaction code.
func NewCode(now time.Time) string {
	fragment := strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), fragment)
}

// PartyOf classifies the acting pharmacy on this transaction.
func (t *Transaction) PartyOf(pharmacyID int64) (role string, ok bool) {
	switch pharmacyID {
	case t.SellerPharmacyID:
		return "seller", true
	case t.BuyerPharmacyID:
		return "buyer", true
	}
	return "", false
}

// CounterpartUser returns the user on the other side of the trade.
func (t *Transaction) CounterpartUser(pharmacyID int64) int64 {
	if pharmacyID == t.SellerPharmacyID {
		return t.BuyerUserID
	}
	return t.SellerUserID
}

// AppendTimeline adds one entry and keeps the status in sync with it.
func (t *Transaction) AppendTimeline(status, note string, updatedBy int64, at time.Time) {
	t.Status = status
	t.Timeline = append(t.Timeline, TimelineEntry{Status: status, Date: at, Note: note, UpdatedBy: updatedBy})
}

// Validate checks structural integrity of a new transaction.
func (t *Transaction) Validate() error {
	if t.SellerPharmacyID == t.BuyerPharmacyID {
		return fmt.Errorf("trading: seller and buyer must differ: %w", shared.ErrValidation)
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("trading: at least one item required: %w", shared.ErrValidation)
	}
	for i, item := range t.Items {
		if item.MedicineID <= 0 || item.Quantity <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("trading: item %d malformed: %w", i, shared.ErrValidation)
		}
	}
	return nil
}

// ComputeTotals fills per-item totals and the transaction total.
func (t *Transaction) ComputeTotals() {
	var total float64
	for i := range t.Items {
		t.Items[i].TotalPrice = t.Items[i].UnitPrice * float64(t.Items[i].Quantity)
		total += t.Items[i].TotalPrice
	}
	t.TotalAmount = total
}
