package donation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/donation"
	"github.com/zjoart/churpay/internal/store/memory"
	"github.com/zjoart/churpay/internal/wallet"
)

func setup(t *testing.T, status church.Status, linkAdmin bool) (*donation.Service, *wallet.Service, *church.Church, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewService(store, store, "ZAR")

	admin, member := uuid.New(), uuid.New()
	c := &church.Church{Name: "St Mark's", RegistrationNumber: "NPO-9", Status: status}
	require.NoError(t, store.CreateChurch(ctx, c))
	if linkAdmin {
		require.NoError(t, store.LinkAdminUser(ctx, c.ID, admin))
	}

	for _, u := range []uuid.UUID{admin, member} {
		_, err := ledger.EnsureWallet(ctx, u)
		require.NoError(t, err)
	}
	entry, err := ledger.InitiateTopUp(ctx, member, 2_000)
	require.NoError(t, err)
	require.NoError(t, ledger.CompleteTopUp(ctx, entry.Reference, 2_000))

	return donation.NewService(store, ledger, store), ledger, c, admin, member
}

func available(t *testing.T, ledger *wallet.Service, userID uuid.UUID) int64 {
	t.Helper()
	w, err := ledger.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.AvailableBalance
}

func TestDonate(t *testing.T) {
	svc, ledger, c, admin, member := setup(t, church.StatusApproved, true)

	receipt, err := svc.Donate(context.Background(), member, c.ID, 750, "")
	require.NoError(t, err)
	assert.Equal(t, c.ID, receipt.ChurchID)
	assert.Equal(t, int64(750), receipt.Amount)
	assert.Equal(t, int64(1_250), receipt.BalanceAfter)

	assert.Equal(t, int64(1_250), available(t, ledger, member))
	assert.Equal(t, int64(750), available(t, ledger, admin))

	txs, _, err := ledger.History(context.Background(), admin, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.TransactionDonation, txs[0].Type)
	assert.Equal(t, "Donation to St Mark's", txs[0].Description)
}

func TestDonateRequiresFundableChurch(t *testing.T) {
	tests := []struct {
		name      string
		status    church.Status
		linkAdmin bool
	}{
		{"pending", church.StatusPending, true},
		{"suspended", church.StatusSuspended, true},
		{"rejected", church.StatusRejected, true},
		{"approved without admin", church.StatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ledger, c, _, member := setup(t, tt.status, tt.linkAdmin)

			_, err := svc.Donate(context.Background(), member, c.ID, 100, "")
			assert.ErrorIs(t, err, church.ErrNotApproved)
			assert.Equal(t, int64(2_000), available(t, ledger, member))
		})
	}
}

func TestDonateInsufficientBalance(t *testing.T) {
	svc, ledger, c, admin, member := setup(t, church.StatusApproved, true)

	_, err := svc.Donate(context.Background(), member, c.ID, 2_001, "tithe")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, int64(2_000), available(t, ledger, member))
	assert.Equal(t, int64(0), available(t, ledger, admin))

	_, err = svc.Donate(context.Background(), member, uuid.New(), 10, "")
	assert.ErrorIs(t, err, church.ErrNotFound)
}
