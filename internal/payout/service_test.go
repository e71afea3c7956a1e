package payout_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/payout"
	"github.com/zjoart/churpay/internal/store/memory"
	"github.com/zjoart/churpay/internal/wallet"
)

type fixture struct {
	store  *memory.Store
	ledger *wallet.Service
	svc    *payout.Service
	church *church.Church
	admin  uuid.UUID
}

// newFixture sets up an approved church whose admin wallet holds balance.
func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ledger := wallet.NewService(store, store, "ZAR")

	admin := uuid.New()
	c := &church.Church{Name: "Hope Fellowship", RegistrationNumber: "NPO-" + admin.String()[:8], Status: church.StatusApproved}
	require.NoError(t, store.CreateChurch(ctx, c))
	require.NoError(t, store.LinkAdminUser(ctx, c.ID, admin))
	c.AdminUserID = &admin

	_, err := ledger.EnsureWallet(ctx, admin)
	require.NoError(t, err)
	if balance > 0 {
		entry, err := ledger.InitiateTopUp(ctx, admin, balance)
		require.NoError(t, err)
		require.NoError(t, ledger.CompleteTopUp(ctx, entry.Reference, balance))
	}

	return &fixture{
		store:  store,
		ledger: ledger,
		svc:    payout.NewService(store, store, ledger, store),
		church: c,
		admin:  admin,
	}
}

func (f *fixture) request(t *testing.T, amount int64) *payout.Payout {
	t.Helper()
	p, err := f.svc.RequestPayout(context.Background(), payout.Request{
		ChurchID:    f.church.ID,
		Amount:      amount,
		Category:    "maintenance",
		Description: "roof repairs",
		RequestedBy: f.admin,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	w, err := f.ledger.GetWallet(context.Background(), f.admin)
	require.NoError(t, err)
	return w.AvailableBalance
}

func TestRequestPayout(t *testing.T) {
	f := newFixture(t, 10_000)

	p := f.request(t, 4_000)
	assert.Equal(t, payout.StatusRequested, p.Status)
	assert.Equal(t, "ZAR", p.Currency)
	assert.Equal(t, f.church.ID, p.ChurchID)

	_, err := f.svc.RequestPayout(context.Background(), payout.Request{ChurchID: f.church.ID, Amount: 0, RequestedBy: f.admin})
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)

	_, err = f.svc.RequestPayout(context.Background(), payout.Request{ChurchID: f.church.ID, Amount: 10_001, RequestedBy: f.admin})
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	// requests do not move money
	assert.Equal(t, int64(10_000), f.balance(t))
}

func TestRequestPayoutNeedsApprovedChurch(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()

	suspended := *f.church
	suspended.Status = church.StatusSuspended
	from := church.StatusApproved
	suspended.SuspendedFrom = &from
	require.NoError(t, f.store.UpdateChurchStatus(ctx, &suspended, church.StatusApproved))

	_, err := f.svc.RequestPayout(ctx, payout.Request{ChurchID: f.church.ID, Amount: 100, RequestedBy: f.admin})
	assert.ErrorIs(t, err, church.ErrNotApproved)

	_, err = f.svc.RequestPayout(ctx, payout.Request{ChurchID: uuid.New(), Amount: 100, RequestedBy: f.admin})
	assert.ErrorIs(t, err, church.ErrNotFound)
}

func TestApprovePayoutDebitsChurchWallet(t *testing.T) {
	f := newFixture(t, 10_000)
	ctx := context.Background()
	p := f.request(t, 4_000)
	processor := uuid.New()

	approved, err := f.svc.DecidePayout(ctx, p.ID, payout.DecisionApprove, processor, "")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedBy)
	assert.Equal(t, processor, *approved.ProcessedBy)
	require.NotNil(t, approved.TransactionID)

	assert.Equal(t, int64(6_000), f.balance(t))

	entry, err := f.store.GetTransactionByReference(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, *approved.TransactionID, entry.ID)
	assert.Equal(t, wallet.TransactionPayout, entry.Type)
	assert.Equal(t, int64(-4_000), entry.Amount)

	rec, err := f.ledger.Reconcile(ctx, f.admin)
	require.NoError(t, err)
	assert.True(t, rec.Balanced)

	_, err = f.svc.DecidePayout(ctx, p.ID, payout.DecisionApprove, processor, "")
	assert.ErrorIs(t, err, payout.ErrInvalidState)
	assert.Equal(t, int64(6_000), f.balance(t))

	completed, err := f.svc.CompletePayout(ctx, p.ID, processor)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	_, err = f.svc.CompletePayout(ctx, p.ID, processor)
	assert.ErrorIs(t, err, payout.ErrInvalidState)
}

func TestApprovalEnforcesBalanceAtDecisionTime(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()

	first := f.request(t, 4_000)
	second := f.request(t, 3_000)

	_, err := f.svc.DecidePayout(ctx, first.ID, payout.DecisionApprove, uuid.New(), "")
	require.NoError(t, err)

	_, err = f.svc.DecidePayout(ctx, second.ID, payout.DecisionApprove, uuid.New(), "")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	stored, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.StatusRequested, stored.Status)
	assert.Equal(t, int64(1_000), f.balance(t))
}

func TestRejectPayout(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()
	p := f.request(t, 1_000)

	_, err := f.svc.DecidePayout(ctx, p.ID, payout.DecisionReject, uuid.New(), "  ")
	assert.ErrorIs(t, err, payout.ErrReasonRequired)

	_, err = f.svc.DecidePayout(ctx, p.ID, payout.Decision("maybe"), uuid.New(), "")
	assert.ErrorIs(t, err, payout.ErrInvalidDecision)

	rejected, err := f.svc.DecidePayout(ctx, p.ID, payout.DecisionReject, uuid.New(), "missing invoice")
	require.NoError(t, err)
	assert.Equal(t, payout.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "missing invoice", *rejected.RejectionReason)
	assert.Nil(t, rejected.TransactionID)
	assert.Equal(t, int64(5_000), f.balance(t))

	_, err = f.svc.CompletePayout(ctx, p.ID, uuid.New())
	assert.ErrorIs(t, err, payout.ErrInvalidState)
}

func TestListPayouts(t *testing.T) {
	f := newFixture(t, 5_000)
	ctx := context.Background()
	f.request(t, 100)
	p := f.request(t, 200)
	_, err := f.svc.DecidePayout(ctx, p.ID, payout.DecisionReject, uuid.New(), "duplicate")
	require.NoError(t, err)

	requested := payout.StatusRequested
	payouts, total, err := f.svc.List(ctx, payout.Filter{ChurchID: &f.church.ID, Status: &requested, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(100), payouts[0].Amount)
}
