package trading

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/notification"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// memStore is an in-memory RepositoryPort plus ledger for service tests. A
// single mutex takes the place of row locking, and a snapshot provides the
// all-or-nothing semantics of the real transaction.
type memStore struct {
	mu           sync.Mutex
	txnSeq       int64
	invSeq       int64
	transactions map[int64]Transaction
	records      map[int64]inventory.Record
}

func newMemStore() *memStore {
	return &memStore{
		transactions: make(map[int64]Transaction),
		records:      make(map[int64]inventory.Record),
	}
}

func (m *memStore) seedRecord(rec inventory.Record) inventory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invSeq++
	rec.ID = m.invSeq
	m.records[rec.ID] = rec
	return rec
}

func (m *memStore) record(pharmacyID, medicineID int64) (inventory.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.PharmacyID == pharmacyID && rec.MedicineID == medicineID {
			return rec, true
		}
	}
	return inventory.Record{}, false
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txnSnap := make(map[int64]Transaction, len(m.transactions))
	for id, t := range m.transactions {
		txnSnap[id] = t
	}
	recSnap := make(map[int64]inventory.Record, len(m.records))
	for id, rec := range m.records {
		recSnap[id] = rec
	}
	txnSeq, invSeq := m.txnSeq, m.invSeq
	if err := fn(ctx, (*memTx)(m)); err != nil {
		m.transactions = txnSnap
		m.records = recSnap
		m.txnSeq, m.invSeq = txnSeq, invSeq
		return err
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return Transaction{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memStore) List(_ context.Context, filter Filter, _ shared.Pagination) ([]Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.transactions {
		if t.SellerPharmacyID != filter.PharmacyID && t.BuyerPharmacyID != filter.PharmacyID {
			continue
		}
		if filter.Role == "seller" && t.SellerPharmacyID != filter.PharmacyID {
			continue
		}
		if filter.Role == "buyer" && t.BuyerPharmacyID != filter.PharmacyID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memStore) GetStats(_ context.Context, pharmacyID int64) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{ByStatus: make(map[string]int)}
	for _, t := range m.transactions {
		if t.SellerPharmacyID != pharmacyID && t.BuyerPharmacyID != pharmacyID {
			continue
		}
		stats.ByStatus[t.Status]++
		if t.Status != StatusCompleted {
			continue
		}
		if t.SellerPharmacyID == pharmacyID {
			stats.TotalSales += t.TotalAmount
			stats.SalesCount++
		} else {
			stats.TotalPurchases += t.TotalAmount
			stats.PurchasesCount++
		}
	}
	return stats, nil
}

// Get satisfies StockReader for create-time availability checks.
func (m *memStore) Get(_ context.Context, pharmacyID, medicineID int64) (inventory.Record, error) {
	if rec, ok := m.record(pharmacyID, medicineID); ok {
		return rec, nil
	}
	return inventory.Record{}, shared.ErrNotFound
}

type memTx memStore

func (m *memTx) GetTransactionForUpdate(_ context.Context, id int64) (Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return Transaction{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memTx) InsertTransaction(_ context.Context, t Transaction) (int64, error) {
	m.txnSeq++
	t.ID = m.txnSeq
	m.transactions[t.ID] = t
	return t.ID, nil
}

func (m *memTx) UpdateTransactionStatus(_ context.Context, t Transaction, fromStatus string) error {
	stored, ok := m.transactions[t.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Status != fromStatus {
		return shared.ErrInvalidTransition
	}
	m.transactions[t.ID] = t
	return nil
}

func (m *memTx) UpdateRatings(_ context.Context, t Transaction) error {
	if _, ok := m.transactions[t.ID]; !ok {
		return shared.ErrNotFound
	}
	m.transactions[t.ID] = t
	return nil
}

func (m *memTx) GetForUpdate(_ context.Context, pharmacyID, medicineID int64) (inventory.Record, error) {
	for _, rec := range m.records {
		if rec.PharmacyID == pharmacyID && rec.MedicineID == medicineID {
			return rec, nil
		}
	}
	return inventory.Record{}, shared.ErrNotFound
}

func (m *memTx) Update(_ context.Context, rec inventory.Record) error {
	if _, ok := m.records[rec.ID]; !ok {
		return shared.ErrNotFound
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memTx) Create(_ context.Context, rec inventory.Record) (int64, error) {
	m.invSeq++
	rec.ID = m.invSeq
	m.records[rec.ID] = rec
	return rec.ID, nil
}

type capturedNotification struct {
	recipientID int64
	input       notification.NotifyInput
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []capturedNotification
}

func (s *stubNotifier) Notify(_ context.Context, recipientID int64, in notification.NotifyInput) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, capturedNotification{recipientID: recipientID, input: in})
	return notification.Notification{ID: int64(len(s.sent)), RecipientID: recipientID}, nil
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubOwners struct {
	owners map[int64]int64
}

func (s *stubOwners) ResolveOwner(_ context.Context, pharmacyID int64) (int64, error) {
	if userID, ok := s.owners[pharmacyID]; ok {
		return userID, nil
	}
	return 0, shared.ErrNotFound
}

const (
	sellerPharmacy = int64(1)
	buyerPharmacy  = int64(2)
	sellerUser     = int64(11)
	buyerUser      = int64(22)
	medicineID     = int64(7)
)

var (
	sellerActor = shared.Actor{UserID: sellerUser, PharmacyID: sellerPharmacy}
	buyerActor  = shared.Actor{UserID: buyerUser, PharmacyID: buyerPharmacy}
)

func newFixture(t *testing.T, sellerQty int) (*Service, *memStore, *stubNotifier) {
	t.Helper()
	store := newMemStore()
	store.seedRecord(inventory.Record{
		PharmacyID:    sellerPharmacy,
		MedicineID:    medicineID,
		Quantity:      sellerQty,
		MinStockLevel: 2,
		Status:        inventory.StatusInStock,
		ExpiryDate:    time.Now().Add(180 * 24 * time.Hour),
	})
	notifier := &stubNotifier{}
	owners := &stubOwners{owners: map[int64]int64{sellerPharmacy: sellerUser, buyerPharmacy: buyerUser}}
	svc := NewService(store, store, notifier, owners, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store, notifier
}

func createPending(t *testing.T, svc *Service, qty int) Transaction {
	t.Helper()
	txn, err := svc.Create(context.Background(), sellerActor, CreateInput{
		BuyerPharmacyID: buyerPharmacy,
		Items:           []ItemInput{{MedicineID: medicineID, Quantity: qty, UnitPrice: 10}},
		PaymentMethod:   "bank_transfer",
	})
	require.NoError(t, err)
	return txn
}

func TestCreateChecksAvailability(t *testing.T) {
	svc, _, notifier := newFixture(t, 20)

	txn := createPending(t, svc, 5)
	require.Equal(t, StatusPending, txn.Status)
	require.Equal(t, 50.0, txn.TotalAmount)
	require.Equal(t, "TRY", txn.Currency)
	require.Len(t, txn.Timeline, 1)
	require.Equal(t, buyerUser, txn.BuyerUserID)
	require.Equal(t, 1, notifier.count(), "buyer must be notified of the offer")
	require.Equal(t, buyerUser, notifier.sent[0].recipientID)
	require.Equal(t, notification.TypeOffer, notifier.sent[0].input.Type)

	_, err := svc.Create(context.Background(), sellerActor, CreateInput{
		BuyerPharmacyID: buyerPharmacy,
		Items:           []ItemInput{{MedicineID: medicineID, Quantity: 25, UnitPrice: 10}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestCreateDoesNotReserve(t *testing.T) {
	svc, store, _ := newFixture(t, 20)
	createPending(t, svc, 5)

	rec, ok := store.record(sellerPharmacy, medicineID)
	require.True(t, ok)
	require.Equal(t, 0, rec.ReservedQuantity, "stock is only checked at creation, not held")
}

func TestConfirmReservesStock(t *testing.T) {
	svc, store, notifier := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	confirmed, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.Len(t, confirmed.Timeline, 2)

	rec, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 5, rec.ReservedQuantity)

	last := notifier.sent[notifier.count()-1]
	require.Equal(t, sellerUser, last.recipientID, "seller is told about the confirmation")
}

func TestConfirmByNonBuyerForbidden(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	_, err := svc.Confirm(context.Background(), sellerActor, txn.ID, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestConfirmWithMovedStockStaysPending(t *testing.T) {
	svc, store, _ := newFixture(t, 20)
	txn := createPending(t, svc, 15)

	// Stock moved after creation: another trade drained the record.
	rec, _ := store.record(sellerPharmacy, medicineID)
	rec.Quantity = 10
	store.records[rec.ID] = rec

	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stored, err := store.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status, "shortfall leaves the trade pending, not cancelled")
	require.Len(t, stored.Timeline, 1)

	after, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 0, after.ReservedQuantity, "failed confirm must not hold stock")
}

func TestSkippingInTransitRejected(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)
	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), sellerActor, txn.ID, StatusDelivered, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestOnlySellerShips(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)
	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), buyerActor, txn.ID, StatusInTransit, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestThirdPartyForbidden(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	outsider := shared.Actor{UserID: 99, PharmacyID: 9}
	_, err := svc.Transition(context.Background(), outsider, txn.ID, StatusConfirmed, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Get(context.Background(), outsider, txn.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestFullLifecycleMovesStock(t *testing.T) {
	svc, store, notifier := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), sellerActor, txn.ID, StatusInTransit, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), sellerActor, txn.ID, StatusDelivered, "")
	require.NoError(t, err)

	before := notifier.count()
	completed, err := svc.Transition(context.Background(), buyerActor, txn.ID, StatusCompleted, "received")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.Len(t, completed.Timeline, 5)
	require.Equal(t, before+2, notifier.count(), "completion notifies both parties")

	seller, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 15, seller.Quantity)
	require.Equal(t, 0, seller.ReservedQuantity)

	buyer, ok := store.record(buyerPharmacy, medicineID)
	require.True(t, ok, "buyer record created on first trade")
	require.Equal(t, 5, buyer.Quantity)
}

func TestDuplicateTransitionRejected(t *testing.T) {
	svc, store, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), buyerActor, txn.ID, StatusConfirmed, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	rec, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 5, rec.ReservedQuantity, "replay must not reserve twice")
}

func TestCancelFromConfirmedReleasesReservation(t *testing.T) {
	svc, store, _ := newFixture(t, 10)
	txn := createPending(t, svc, 10)
	_, err := svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)

	rec, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 10, rec.ReservedQuantity)

	cancelled, err := svc.Transition(context.Background(), sellerActor, txn.ID, StatusCancelled, "out of business")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	rec, _ = store.record(sellerPharmacy, medicineID)
	require.Equal(t, 10, rec.Quantity)
	require.Equal(t, 0, rec.ReservedQuantity)
}

func TestRejectPendingTrade(t *testing.T) {
	svc, _, notifier := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	rejected, err := svc.Reject(context.Background(), buyerActor, txn.ID, "price too high")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, rejected.Status)

	last := notifier.sent[notifier.count()-1]
	require.Equal(t, sellerUser, last.recipientID, "seller learns about the rejection")
}

func TestRatingRules(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)

	_, err := svc.Rate(context.Background(), buyerActor, txn.ID, RateInput{RatingType: "seller", Score: 5})
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "rating requires completion")

	_, err = svc.Confirm(context.Background(), buyerActor, txn.ID, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), sellerActor, txn.ID, StatusInTransit, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), sellerActor, txn.ID, StatusDelivered, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), buyerActor, txn.ID, StatusCompleted, "")
	require.NoError(t, err)

	_, err = svc.Rate(context.Background(), sellerActor, txn.ID, RateInput{RatingType: "seller", Score: 5})
	require.ErrorIs(t, err, shared.ErrForbidden, "only the buyer rates the seller")

	rated, err := svc.Rate(context.Background(), buyerActor, txn.ID, RateInput{RatingType: "seller", Score: 4, Comment: "quick delivery"})
	require.NoError(t, err)
	require.NotNil(t, rated.SellerRating)
	require.Equal(t, 4, rated.SellerRating.Score)

	_, err = svc.Rate(context.Background(), buyerActor, txn.ID, RateInput{RatingType: "seller", Score: 1})
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "rating is set once")

	_, err = svc.Rate(context.Background(), buyerActor, txn.ID, RateInput{RatingType: "seller", Score: 9})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRefundAfterCompletion(t *testing.T) {
	svc, store, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)
	for _, step := range []struct {
		actor  shared.Actor
		target string
	}{
		{buyerActor, StatusConfirmed},
		{sellerActor, StatusInTransit},
		{sellerActor, StatusDelivered},
		{buyerActor, StatusCompleted},
	} {
		_, err := svc.Transition(context.Background(), step.actor, txn.ID, step.target, "")
		require.NoError(t, err)
	}

	refunded, err := svc.Transition(context.Background(), sellerActor, txn.ID, StatusRefunded, "damaged goods")
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, refunded.Status)

	// Refund is administrative only: no inventory reversal.
	seller, _ := store.record(sellerPharmacy, medicineID)
	require.Equal(t, 15, seller.Quantity)
}

func TestStatsAggregatesCompletedTrades(t *testing.T) {
	svc, _, _ := newFixture(t, 20)
	txn := createPending(t, svc, 5)
	for _, step := range []struct {
		actor  shared.Actor
		target string
	}{
		{buyerActor, StatusConfirmed},
		{sellerActor, StatusInTransit},
		{sellerActor, StatusDelivered},
		{buyerActor, StatusCompleted},
	} {
		_, err := svc.Transition(context.Background(), step.actor, txn.ID, step.target, "")
		require.NoError(t, err)
	}

	stats, err := svc.GetStats(context.Background(), sellerActor)
	require.NoError(t, err)
	require.Equal(t, 50.0, stats.TotalSales)
	require.Equal(t, 1, stats.SalesCount)

	stats, err = svc.GetStats(context.Background(), buyerActor)
	require.NoError(t, err)
	require.Equal(t, 50.0, stats.TotalPurchases)
}
