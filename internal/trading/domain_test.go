package trading

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]string{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusInTransit},
		{StatusConfirmed, StatusCancelled},
		{StatusInTransit, StatusDelivered},
		{StatusDelivered, StatusCompleted},
		{StatusCompleted, StatusRefunded},
	}
	for _, edge := range legal {
		require.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	illegal := [][2]string{
		{StatusPending, StatusInTransit},
		{StatusPending, StatusCompleted},
		{StatusConfirmed, StatusDelivered},
		{StatusInTransit, StatusCancelled},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusRefunded, StatusCompleted},
		{StatusCompleted, StatusCompleted},
	}
	for _, edge := range illegal {
		require.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestNewCodeFormat(t *testing.T) {
	now := time.Now()
	code := NewCode(now)
	require.True(t, strings.HasPrefix(code, "TXN-"))
	parts := strings.SplitN(code, "-", 3)
	require.Len(t, parts, 3)
	require.NotEqual(t, NewCode(now), code, "codes must be unique")
}

func TestValidateAndTotals(t *testing.T) {
	txn := Transaction{
		SellerPharmacyID: 1,
		BuyerPharmacyID:  2,
		Items: []Item{
			{MedicineID: 7, Quantity: 5, UnitPrice: 10},
			{MedicineID: 8, Quantity: 2, UnitPrice: 3.5},
		},
	}
	require.NoError(t, txn.Validate())
	txn.ComputeTotals()
	require.Equal(t, 50.0, txn.Items[0].TotalPrice)
	require.Equal(t, 7.0, txn.Items[1].TotalPrice)
	require.Equal(t, 57.0, txn.TotalAmount)
}

func TestValidateRejectsSelfTrade(t *testing.T) {
	txn := Transaction{SellerPharmacyID: 1, BuyerPharmacyID: 1, Items: []Item{{MedicineID: 7, Quantity: 1}}}
	require.ErrorIs(t, txn.Validate(), shared.ErrValidation)
}

func TestAppendTimelineKeepsStatusInSync(t *testing.T) {
	now := time.Now()
	var txn Transaction
	txn.AppendTimeline(StatusPending, "created", 1, now)
	txn.AppendTimeline(StatusConfirmed, "ok", 2, now.Add(time.Minute))

	require.Equal(t, StatusConfirmed, txn.Status)
	require.Len(t, txn.Timeline, 2)
	require.Equal(t, txn.Status, txn.Timeline[len(txn.Timeline)-1].Status)
}
