package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/notification"
)

type memRepo struct {
	mu      sync.Mutex
	seq     int64
	records map[int64]*Candidate
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[int64]*Candidate)}
}

func (m *memRepo) seed(c Candidate) *Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c.Record.ID = m.seq
	m.records[c.Record.ID] = &c
	return &c
}

func (m *memRepo) ListExpiring(_ context.Context, within time.Duration, _ int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []Candidate
	for _, c := range m.records {
		if c.Record.NotificationSent || c.Record.ExpiryDate.IsZero() {
			continue
		}
		if c.Record.ExpiryDate.Before(now) || c.Record.ExpiryDate.After(now.Add(within)) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) ListUnderStock(_ context.Context, _ int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Candidate
	for _, c := range m.records {
		if c.Record.LowStockNotificationSent || c.Record.Quantity >= c.Record.MinStockLevel {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) MarkExpiryNotified(_ context.Context, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordID].Record.NotificationSent = true
	return nil
}

func (m *memRepo) MarkLowStockNotified(_ context.Context, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordID].Record.LowStockNotificationSent = true
	return nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []notification.NotifyInput
	fail bool
}

func (s *stubNotifier) Notify(_ context.Context, _ int64, in notification.NotifyInput) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return notification.Notification{}, errors.New("store unavailable")
	}
	s.sent = append(s.sent, in)
	return notification.Notification{ID: int64(len(s.sent))}, nil
}

func (s *stubNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newService(repo RepositoryPort, notifier NotifierPort) *Service {
	return NewService(repo, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)), 30*24*time.Hour)
}

func TestLowStockScanIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	repo.seed(Candidate{
		Record:       inventory.Record{PharmacyID: 3, MedicineID: 9, Quantity: 3, MinStockLevel: 10},
		OwnerUserID:  5,
		MedicineName: "Parasetamol",
	})
	notifier := &stubNotifier{}
	svc := newService(repo, notifier)
	ctx := context.Background()

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.LowStockNotified)
	require.Equal(t, 0, res.ExpiryNotified)
	require.Equal(t, 1, notifier.count())
	require.Equal(t, notification.AlertLowStock, notifier.sent[0].Data.Alert)

	res, err = svc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.LowStockNotified, "second run with no state change is a no-op")
	require.Equal(t, 1, notifier.count())
}

func TestExpiryScanWindow(t *testing.T) {
	repo := newMemRepo()
	repo.seed(Candidate{
		Record:      inventory.Record{PharmacyID: 1, MedicineID: 2, Quantity: 8, ExpiryDate: time.Now().Add(10 * 24 * time.Hour), BatchNumber: "B-1"},
		OwnerUserID: 4,
	})
	repo.seed(Candidate{
		Record:      inventory.Record{PharmacyID: 1, MedicineID: 3, Quantity: 8, ExpiryDate: time.Now().Add(90 * 24 * time.Hour)},
		OwnerUserID: 4,
	})
	notifier := &stubNotifier{}
	svc := newService(repo, notifier)

	res, err := svc.RunExpiryScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ExpiryNotified, "only stock inside the window alerts")
	require.Equal(t, notification.TypeExpiry, notifier.sent[0].Type)
}

func TestOrphanedRecordSkippedAndRetried(t *testing.T) {
	repo := newMemRepo()
	seeded := repo.seed(Candidate{
		Record:      inventory.Record{PharmacyID: 1, MedicineID: 2, Quantity: 1, MinStockLevel: 5},
		OwnerUserID: 0,
	})
	notifier := &stubNotifier{}
	svc := newService(repo, notifier)
	ctx := context.Background()

	res, err := svc.RunLowStockScan(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.LowStockNotified)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 0, notifier.count())
	require.False(t, repo.records[seeded.Record.ID].Record.LowStockNotificationSent,
		"orphans keep the flag clear so the next run retries them")

	// Owner appears later: the same record now alerts.
	repo.records[seeded.Record.ID].OwnerUserID = 9
	res, err = svc.RunLowStockScan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.LowStockNotified)
}

func TestNotifyFailureLeavesFlagClear(t *testing.T) {
	repo := newMemRepo()
	seeded := repo.seed(Candidate{
		Record:      inventory.Record{PharmacyID: 1, MedicineID: 2, Quantity: 1, MinStockLevel: 5},
		OwnerUserID: 4,
	})
	notifier := &stubNotifier{fail: true}
	svc := newService(repo, notifier)

	res, err := svc.RunLowStockScan(context.Background())
	require.NoError(t, err, "one failing record must not abort the scan")
	require.Equal(t, 1, res.Skipped)
	require.False(t, repo.records[seeded.Record.ID].Record.LowStockNotificationSent)
}
