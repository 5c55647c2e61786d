package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

type memRepo struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]Notification
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]Notification)}
}

func (m *memRepo) Create(_ context.Context, n Notification) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	n.ID = m.seq
	n.CreatedAt = time.Now()
	m.items[n.ID] = n
	return n, nil
}

func (m *memRepo) ListByRecipient(_ context.Context, recipientID int64, onlyUnread bool, _ shared.Pagination) ([]Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.RecipientID == recipientID && (!onlyUnread || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) CountUnread(_ context.Context, recipientID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) MarkRead(_ context.Context, recipientID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return shared.ErrNotFound
	}
	n.IsRead = true
	m.items[id] = n
	return nil
}

func (m *memRepo) MarkAllRead(_ context.Context, recipientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.items {
		if n.RecipientID == recipientID {
			n.IsRead = true
			m.items[id] = n
		}
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, recipientID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.RecipientID != recipientID {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) DeleteAllByRecipient(_ context.Context, recipientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.items {
		if n.RecipientID == recipientID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memRepo) DeleteLowStock(_ context.Context, pharmacyID, medicineID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.items {
		if n.Data.Alert == AlertLowStock &&
			n.Data.PharmacyID != nil && *n.Data.PharmacyID == pharmacyID &&
			n.Data.MedicineID != nil && *n.Data.MedicineID == medicineID {
			delete(m.items, id)
		}
	}
	return nil
}

func ptr(v int64) *int64 { return &v }

func TestNotifyValidatesInput(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Notify(ctx, 0, NotifyInput{Title: "t", Type: TypeSystem})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Notify(ctx, 1, NotifyInput{Title: "t", Type: "bogus"})
	require.ErrorIs(t, err, shared.ErrValidation)

	n, err := svc.Notify(ctx, 1, NotifyInput{Title: "Trade confirmed", Message: "m", Type: TypeTransaction})
	require.NoError(t, err)
	require.NotZero(t, n.ID)
	require.False(t, n.IsRead)
}

func TestRetractLowStockRemovesMatchingAlerts(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Notify(ctx, 5, NotifyInput{
		Title: "Low stock", Type: TypeSystem,
		Data: Data{Alert: AlertLowStock, PharmacyID: ptr(3), MedicineID: ptr(9)},
	})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, 5, NotifyInput{
		Title: "Other medicine low", Type: TypeSystem,
		Data: Data{Alert: AlertLowStock, PharmacyID: ptr(3), MedicineID: ptr(11)},
	})
	require.NoError(t, err)

	require.NoError(t, svc.RetractLowStock(ctx, 3, 9))

	remaining, _, err := svc.List(ctx, shared.Actor{UserID: 5}, false, shared.Pagination{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, int64(11), *remaining[0].Data.MedicineID)
}

func TestReadLifecycle(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	actor := shared.Actor{UserID: 7}

	first, err := svc.Notify(ctx, 7, NotifyInput{Title: "a", Type: TypeSystem})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, 7, NotifyInput{Title: "b", Type: TypeSystem})
	require.NoError(t, err)

	count, err := svc.CountUnread(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, actor, first.ID))
	count, err = svc.CountUnread(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, svc.MarkAllRead(ctx, actor))
	count, err = svc.CountUnread(ctx, actor)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestMarkReadForeignNotification(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	n, err := svc.Notify(ctx, 7, NotifyInput{Title: "a", Type: TypeSystem})
	require.NoError(t, err)

	err = svc.MarkRead(ctx, shared.Actor{UserID: 8}, n.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
