package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/notification"
	"github.com/pharmatrade/pharmatrade/internal/platform/cache"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines persistence for transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, filter Filter, page shared.Pagination) ([]Transaction, int, error)
	GetStats(ctx context.Context, pharmacyID int64) (Stats, error)
}

// StockReader gives read access to the ledger for pre-flight availability
// checks.
type StockReader interface {
	Get(ctx context.Context, pharmacyID, medicineID int64) (inventory.Record, error)
}

// NotifierPort dispatches alerts to trade parties.
type NotifierPort interface {
	Notify(ctx context.Context, recipientID int64, in notification.NotifyInput) (notification.Notification, error)
}

// OwnerResolver maps a pharmacy to the user notified on its behalf.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, pharmacyID int64) (int64, error)
}

// Service owns the trade lifecycle state machine.
type Service struct {
	repo     RepositoryPort
	stock    StockReader
	notifier NotifierPort
	owners   OwnerResolver
	cache    *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, stock StockReader, notifier NotifierPort, owners OwnerResolver, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, notifier: notifier, owners: owners, cache: c, logger: logger, now: time.Now}
}

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

// ItemInput is one requested trade line.
type ItemInput struct {
	MedicineID  int64
	Quantity    int
	UnitPrice   float64
	BatchNumber string
	ExpiryDate  time.Time
}

// CreateInput describes a new trade offered by the selling pharmacy.
type CreateInput struct {
	BuyerPharmacyID int64
	Items           []ItemInput
	Currency        string
	PaymentMethod   string
	Notes           string
}

// Create opens a pending trade. Stock is only checked here, not reserved;
// the hold is taken when the buyer confirms.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Transaction, error) {
	now := s.now()
	t := Transaction{
		Code:             NewCode(now),
		SellerPharmacyID: actor.PharmacyID,
		BuyerPharmacyID:  in.BuyerPharmacyID,
		SellerUserID:     actor.UserID,
		Currency:         in.Currency,
		PaymentMethod:    in.PaymentMethod,
		Notes:            in.Notes,
	}
	if t.Currency == "" {
		t.Currency = "TRY"
	}
	for _, item := range in.Items {
		t.Items = append(t.Items, Item{
			MedicineID:  item.MedicineID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			BatchNumber: item.BatchNumber,
			ExpiryDate:  item.ExpiryDate,
		})
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	t.ComputeTotals()

	for _, item := range t.Items {
		rec, err := s.stock.Get(ctx, t.SellerPharmacyID, item.MedicineID)
		if errors.Is(err, shared.ErrNotFound) {
			return Transaction{}, fmt.Errorf("trading: no stock for medicine %d: %w", item.MedicineID, shared.ErrInsufficientStock)
		}
		if err != nil {
			return Transaction{}, err
		}
		if rec.AvailableQuantity() < item.Quantity {
			return Transaction{}, fmt.Errorf("trading: medicine %d has %d available, %d requested: %w",
				item.MedicineID, rec.AvailableQuantity(), item.Quantity, shared.ErrInsufficientStock)
		}
	}

	buyerUser, err := s.owners.ResolveOwner(ctx, in.BuyerPharmacyID)
	if err != nil {
		return Transaction{}, err
	}
	t.BuyerUserID = buyerUser
	t.AppendTimeline(StatusPending, "Transaction created", actor.UserID, now)
	t.CreatedAt = now
	t.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertTransaction(ctx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.notify(ctx, t.BuyerUserID, notification.NotifyInput{
		Title:   "New trade offer",
		Message: fmt.Sprintf("Trade %s offered to your pharmacy", t.Code),
		Type:    notification.TypeOffer,
		Data:    notification.Data{TransactionID: &t.ID},
	})
	s.invalidateStats(ctx, t.SellerPharmacyID, t.BuyerPharmacyID)
	return t, nil
}

// sellerOnly lists targets only the selling side may trigger.
func sellerOnly(target string) bool {
	return target == StatusInTransit || target == StatusDelivered
}

// Transition advances a trade one edge through the state machine. The status
// change, timeline entry and ledger effect commit as one unit.
func (s *Service) Transition(ctx context.Context, actor shared.Actor, id int64, target, note string) (Transaction, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	role, ok := current.PartyOf(actor.PharmacyID)
	if !ok {
		return Transaction{}, fmt.Errorf("trading: pharmacy %d is not a party to %s: %w", actor.PharmacyID, current.Code, shared.ErrForbidden)
	}
	if sellerOnly(target) && role != "seller" {
		return Transaction{}, fmt.Errorf("trading: only the seller may mark %s: %w", target, shared.ErrForbidden)
	}
	if !CanTransition(current.Status, target) {
		return Transaction{}, fmt.Errorf("trading: %s -> %s is not a legal transition: %w", current.Status, target, shared.ErrInvalidTransition)
	}

	var out Transaction
	err = s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from := txn.Status
		if !CanTransition(from, target) {
			return fmt.Errorf("trading: %s -> %s is not a legal transition: %w", from, target, shared.ErrInvalidTransition)
		}
		if n := len(txn.Timeline); n > 0 && txn.Timeline[n-1].Status != from {
			return fmt.Errorf("trading: timeline out of sync on %s: %w", txn.Code, shared.ErrInvalidTransition)
		}

		now := s.now()
		switch target {
		case StatusConfirmed:
			for _, item := range txn.Items {
				rec, err := tx.GetForUpdate(ctx, txn.SellerPharmacyID, item.MedicineID)
				if err != nil {
					return err
				}
				if err := rec.ApplyReserve(item.Quantity, now); err != nil {
					return err
				}
				if err := tx.Update(ctx, rec); err != nil {
					return err
				}
			}
		case StatusCancelled:
			if from == StatusConfirmed {
				for _, item := range txn.Items {
					rec, err := tx.GetForUpdate(ctx, txn.SellerPharmacyID, item.MedicineID)
					if err != nil {
						return err
					}
					if err := rec.ApplyRelease(item.Quantity, now); err != nil {
						return err
					}
					if err := tx.Update(ctx, rec); err != nil {
						return err
					}
				}
			}
		case StatusCompleted:
			for _, item := range txn.Items {
				err := inventory.CommitLine(ctx, tx, inventory.CommitInput{
					SellerPharmacyID: txn.SellerPharmacyID,
					BuyerPharmacyID:  txn.BuyerPharmacyID,
					MedicineID:       item.MedicineID,
					Quantity:         item.Quantity,
					UnitPrice:        item.UnitPrice,
					Currency:         txn.Currency,
					BatchNumber:      item.BatchNumber,
					ExpiryDate:       item.ExpiryDate,
				}, now)
				if err != nil {
					return err
				}
			}
			txn.CompletedAt = &now
		}

		txn.AppendTimeline(target, note, actor.UserID, now)
		txn.UpdatedAt = now
		if err := tx.UpdateTransactionStatus(ctx, txn, from); err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		if target == StatusCompleted && errors.Is(err, shared.ErrConcurrencyConflict) {
			return Transaction{}, fmt.Errorf("trading: settle %s: %v: %w", current.Code, err, shared.ErrTransactionFailed)
		}
		return Transaction{}, err
	}

	s.notifyTransition(ctx, out, actor)
	s.invalidateStats(ctx, out.SellerPharmacyID, out.BuyerPharmacyID)
	return out, nil
}

// Confirm is the buyer accepting a pending trade.
func (s *Service) Confirm(ctx context.Context, actor shared.Actor, id int64, note string) (Transaction, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if actor.PharmacyID != txn.BuyerPharmacyID {
		return Transaction{}, fmt.Errorf("trading: only the buyer may confirm %s: %w", txn.Code, shared.ErrForbidden)
	}
	if note == "" {
		note = "Confirmed by buyer"
	}
	return s.Transition(ctx, actor, id, StatusConfirmed, note)
}

// Reject is the buyer declining a pending trade.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (Transaction, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if actor.PharmacyID != txn.BuyerPharmacyID {
		return Transaction{}, fmt.Errorf("trading: only the buyer may reject %s: %w", txn.Code, shared.ErrForbidden)
	}
	if txn.Status != StatusPending {
		return Transaction{}, fmt.Errorf("trading: %s is no longer pending: %w", txn.Code, shared.ErrInvalidTransition)
	}
	if reason == "" {
		reason = "Rejected by buyer"
	}
	return s.Transition(ctx, actor, id, StatusCancelled, reason)
}

// RateInput scores the counterparty after completion.
type RateInput struct {
	RatingType string // "seller" rates the seller, "buyer" rates the buyer
	Score      int
	Comment    string
}

// Rate records one-time post-completion feedback about the counterparty.
func (s *Service) Rate(ctx context.Context, actor shared.Actor, id int64, in RateInput) (Transaction, error) {
	if in.Score < 1 || in.Score > 5 {
		return Transaction{}, fmt.Errorf("trading: score must be between 1 and 5: %w", shared.ErrValidation)
	}
	if in.RatingType != "seller" && in.RatingType != "buyer" {
		return Transaction{}, fmt.Errorf("trading: rating type must be seller or buyer: %w", shared.ErrValidation)
	}
	var out Transaction
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := txn.PartyOf(actor.PharmacyID); !ok {
			return fmt.Errorf("trading: pharmacy %d is not a party to %s: %w", actor.PharmacyID, txn.Code, shared.ErrForbidden)
		}
		if txn.Status != StatusCompleted {
			return fmt.Errorf("trading: %s is not completed: %w", txn.Code, shared.ErrInvalidTransition)
		}
		rating := &Rating{Score: in.Score, Comment: in.Comment, RatedBy: actor.UserID, CreatedAt: s.now()}
		switch in.RatingType {
		case "seller":
			if actor.PharmacyID != txn.BuyerPharmacyID {
				return fmt.Errorf("trading: only the buyer rates the seller: %w", shared.ErrForbidden)
			}
			if txn.SellerRating != nil {
				return fmt.Errorf("trading: seller already rated on %s: %w", txn.Code, shared.ErrInvalidTransition)
			}
			txn.SellerRating = rating
		case "buyer":
			if actor.PharmacyID != txn.SellerPharmacyID {
				return fmt.Errorf("trading: only the seller rates the buyer: %w", shared.ErrForbidden)
			}
			if txn.BuyerRating != nil {
				return fmt.Errorf("trading: buyer already rated on %s: %w", txn.Code, shared.ErrInvalidTransition)
			}
			txn.BuyerRating = rating
		}
		if err := tx.UpdateRatings(ctx, txn); err != nil {
			return err
		}
		out = txn
		return nil
	})
	return out, err
}

// Get returns one transaction visible to the acting party.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Transaction, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if _, ok := txn.PartyOf(actor.PharmacyID); !ok {
		return Transaction{}, fmt.Errorf("trading: pharmacy %d is not a party to %s: %w", actor.PharmacyID, txn.Code, shared.ErrForbidden)
	}
	return txn, nil
}

// List returns the acting pharmacy's transactions.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter Filter, page shared.Pagination) ([]Transaction, int, error) {
	filter.PharmacyID = actor.PharmacyID
	return s.repo.List(ctx, filter, page)
}

// GetStats returns cached trade figures for the acting pharmacy.
func (s *Service) GetStats(ctx context.Context, actor shared.Actor) (Stats, error) {
	var stats Stats
	key := cache.Key("trading", "stats", strconv.FormatInt(actor.PharmacyID, 10))
	err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (any, error) {
		return s.repo.GetStats(ctx, actor.PharmacyID)
	})
	return stats, err
}

// notifyTransition fans out the per-edge notifications from the table in the
// state machine design. Failures are logged, never propagated.
func (s *Service) notifyTransition(ctx context.Context, txn Transaction, actor shared.Actor) {
	base := notification.Data{TransactionID: &txn.ID}
	switch txn.Status {
	case StatusConfirmed:
		s.notify(ctx, txn.SellerUserID, notification.NotifyInput{
			Title:   "Trade confirmed",
			Message: fmt.Sprintf("Trade %s was confirmed by the buyer", txn.Code),
			Type:    notification.TypeTransaction,
			Data:    base,
		})
	case StatusCancelled:
		s.notify(ctx, txn.CounterpartUser(actor.PharmacyID), notification.NotifyInput{
			Title:   "Trade cancelled",
			Message: fmt.Sprintf("Trade %s was cancelled", txn.Code),
			Type:    notification.TypeTransaction,
			Data:    base,
		})
	case StatusInTransit:
		s.notify(ctx, txn.BuyerUserID, notification.NotifyInput{
			Title:   "Trade shipped",
			Message: fmt.Sprintf("Trade %s is on its way", txn.Code),
			Type:    notification.TypeTransaction,
			Data:    base,
		})
	case StatusDelivered:
		s.notify(ctx, txn.BuyerUserID, notification.NotifyInput{
			Title:   "Trade delivered",
			Message: fmt.Sprintf("Trade %s was delivered", txn.Code),
			Type:    notification.TypeTransaction,
			Data:    base,
		})
	case StatusCompleted:
		s.notify(ctx, txn.SellerUserID, notification.NotifyInput{
			Title:   "Sale completed",
			Message: fmt.Sprintf("Trade %s settled for %.2f %s", txn.Code, txn.TotalAmount, txn.Currency),
			Type:    notification.TypeTransaction,
			Data:    base,
		})
		s.notify(ctx, txn.BuyerUserID, notification.NotifyInput{
			Title:   "Purchase completed",
			Message: fmt.Sprintf("Trade %s settled for %.2f %s", txn.Code, txn.TotalAmount, txn.Currency),
			Type:    notification.TypePurchase,
			Data:    base,
		})
	case StatusRefunded:
		for _, recipient := range []int64{txn.SellerUserID, txn.BuyerUserID} {
			s.notify(ctx, recipient, notification.NotifyInput{
				Title:   "Trade refunded",
				Message: fmt.Sprintf("Trade %s was refunded", txn.Code),
				Type:    notification.TypeSystem,
				Data:    base,
			})
		}
	}
}

func (s *Service) notify(ctx context.Context, recipientID int64, in notification.NotifyInput) {
	if s.notifier == nil || recipientID == 0 {
		return
	}
	if _, err := s.notifier.Notify(ctx, recipientID, in); err != nil {
		s.logger.Error("dispatch notification",
			slog.Int64("recipient_id", recipientID),
			slog.String("type", in.Type),
			slog.Any("error", err))
	}
}

func (s *Service) invalidateStats(ctx context.Context, pharmacyIDs ...int64) {
	for _, id := range pharmacyIDs {
		if err := s.cache.Invalidate(ctx, cache.Key("trading", "stats", strconv.FormatInt(id, 10))); err != nil {
			s.logger.Warn("invalidate stats cache", slog.Int64("pharmacy_id", id), slog.Any("error", err))
		}
	}
}
