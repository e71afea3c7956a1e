package church_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/store/memory"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendApprovalNotification(ctx context.Context, c church.Church, setupURL string) error {
	args := m.Called(ctx, c, setupURL)
	return args.Error(0)
}

func (m *mockNotifier) SendRejectionNotification(ctx context.Context, c church.Church, reason string) error {
	args := m.Called(ctx, c, reason)
	return args.Error(0)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	store    *memory.Store
	ledger   *wallet.Service
	svc      *church.Service
	notifier *mockNotifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ledger := wallet.NewService(store, store, "ZAR")
	notifier := &mockNotifier{}
	clk := &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}

	svc := church.NewService(store, store, ledger, store, notifier, church.Options{
		SetupURL: "https://app.churpay.test/setup",
		Now:      clk.Now,
	})
	return &fixture{store: store, ledger: ledger, svc: svc, notifier: notifier, clock: clk}
}

func (f *fixture) register(t *testing.T, reg string) *church.Church {
	t.Helper()
	c, err := f.svc.Register(context.Background(), church.RegisterRequest{
		Name:               "Grace Chapel",
		RegistrationNumber: reg,
		AdminFirstName:     "Thandi",
		AdminLastName:      "Mokoena",
		AdminEmail:         "Admin+" + reg + "@GraceChapel.org",
	})
	require.NoError(t, err)
	return c
}

// approve approves c and returns the raw setup token taken from the link
// handed to the notifier.
func (f *fixture) approve(t *testing.T, c *church.Church) string {
	t.Helper()
	var link string
	f.notifier.On("SendApprovalNotification", mock.Anything, mock.MatchedBy(func(got church.Church) bool {
		return got.ID == c.ID
	}), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { link = args.String(2) }).
		Return(nil).Once()

	_, err := f.svc.Approve(context.Background(), c.ID, uuid.New())
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	c := f.register(t, "NPO-100")

	assert.Equal(t, church.StatusPending, c.Status)
	assert.Equal(t, "admin+npo-100@gracechapel.org", c.AdminEmail)

	_, err := f.svc.Register(context.Background(), church.RegisterRequest{
		Name: "Copy", RegistrationNumber: "NPO-100", AdminEmail: "x@y.org",
	})
	assert.ErrorIs(t, err, church.ErrDuplicateChurch)

	_, err = f.svc.Register(context.Background(), church.RegisterRequest{Name: "  ", RegistrationNumber: "NPO-101", AdminEmail: "x@y.org"})
	assert.ErrorIs(t, err, church.ErrInvalidRegistration)
}

func TestApproveIssuesTimeBoxedToken(t *testing.T) {
	f := newFixture(t)
	c := f.register(t, "NPO-1")
	approver := uuid.New()

	f.notifier.On("SendApprovalNotification", mock.Anything, mock.Anything, mock.MatchedBy(func(link string) bool {
		return len(link) > len("https://app.churpay.test/setup?token=")
	})).Return(nil).Once()

	approved, err := f.svc.Approve(context.Background(), c.ID, approver)
	require.NoError(t, err)

	assert.Equal(t, church.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, approver, *approved.ReviewedBy)
	require.NotNil(t, approved.SetupTokenHash)
	require.NotNil(t, approved.SetupTokenExpiresAt)
	assert.Equal(t, f.clock.now.Add(24*time.Hour), *approved.SetupTokenExpiresAt)
	f.notifier.AssertExpectations(t)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, church.StatusApproved, stored.Status)
}

func TestApproveOrRejectRequiresPending(t *testing.T) {
	f := newFixture(t)
	c := f.register(t, "NPO-2")
	f.approve(t, c)

	before, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), c.ID, uuid.New())
	assert.ErrorIs(t, err, church.ErrInvalidState)

	_, err = f.svc.Reject(context.Background(), c.ID, uuid.New(), "duplicate application")
	assert.ErrorIs(t, err, church.ErrInvalidState)

	after, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// only the first approval notified
	f.notifier.AssertNumberOfCalls(t, "SendApprovalNotification", 1)
}

func TestApprovalSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	c := f.register(t, "NPO-3")

	f.notifier.On("SendApprovalNotification", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp: connection refused")).Once()

	approved, err := f.svc.Approve(context.Background(), c.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, church.StatusApproved, approved.Status)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, church.StatusApproved, stored.Status)
}

func TestRejectSendsReason(t *testing.T) {
	f := newFixture(t)
	c := f.register(t, "NPO-4")

	_, err := f.svc.Reject(context.Background(), c.ID, uuid.New(), "   ")
	assert.ErrorIs(t, err, church.ErrReasonRequired)

	f.notifier.On("SendRejectionNotification", mock.Anything, mock.Anything, "registration number not found").
		Return(nil).Once()

	rejected, err := f.svc.Reject(context.Background(), c.ID, uuid.New(), "registration number not found")
	require.NoError(t, err)
	assert.Equal(t, church.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.StatusReason)
	assert.Equal(t, "registration number not found", *rejected.StatusReason)
	f.notifier.AssertExpectations(t)
}

func TestReviewSuspendAndReinstate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.register(t, "NPO-5")

	reviewed, err := f.svc.MarkUnderReview(ctx, c.ID, "awaiting bank letter")
	require.NoError(t, err)
	assert.Equal(t, church.StatusUnderReview, reviewed.Status)

	_, err = f.svc.Approve(ctx, c.ID, uuid.New())
	assert.ErrorIs(t, err, church.ErrInvalidState)

	resumed, err := f.svc.ResumeReview(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, church.StatusPending, resumed.Status)

	f.approve(t, c)

	_, err = f.svc.Suspend(ctx, c.ID, "")
	assert.ErrorIs(t, err, church.ErrReasonRequired)

	suspended, err := f.svc.Suspend(ctx, c.ID, "chargeback investigation")
	require.NoError(t, err)
	assert.Equal(t, church.StatusSuspended, suspended.Status)

	_, err = f.svc.Suspend(ctx, c.ID, "again")
	assert.ErrorIs(t, err, church.ErrInvalidState)

	reinstated, err := f.svc.Reinstate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, church.StatusApproved, reinstated.Status)
	assert.Nil(t, reinstated.SuspendedFrom)

	_, err = f.svc.Reinstate(ctx, c.ID)
	assert.ErrorIs(t, err, church.ErrInvalidState)
}

func TestCompleteSetupCreatesAdminAndWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.register(t, "NPO-6")
	token := f.approve(t, c)

	status, err := f.svc.ValidateSetupToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, c.ID, status.Church.ID)

	admin, err := f.svc.CompleteSetup(ctx, token, "s3cure-pass")
	require.NoError(t, err)
	assert.True(t, admin.HasRole(user.RoleChurchAdmin))
	require.NotNil(t, admin.ChurchID)
	assert.Equal(t, c.ID, *admin.ChurchID)
	assert.Equal(t, "Thandi Mokoena", admin.Name)
	assert.True(t, user.CheckPassword(admin.PasswordHash, "s3cure-pass"))

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AdminUserID)
	assert.Equal(t, admin.ID, *stored.AdminUserID)
	assert.Nil(t, stored.SetupTokenHash)
	assert.True(t, stored.CanReceiveFunds())

	w, err := f.ledger.GetWallet(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.AvailableBalance)

	// single use
	_, err = f.svc.CompleteSetup(ctx, token, "s3cure-pass")
	assert.ErrorIs(t, err, church.ErrInvalidOrExpiredToken)

	status, err = f.svc.ValidateSetupToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, status.Valid)
}

func TestCompleteSetupAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.register(t, "NPO-7")
	token := f.approve(t, c)

	f.clock.now = f.clock.now.Add(25 * time.Hour)

	status, err := f.svc.ValidateSetupToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, status.Valid)

	_, err = f.svc.CompleteSetup(ctx, token, "s3cure-pass")
	assert.ErrorIs(t, err, church.ErrInvalidOrExpiredToken)

	_, err = f.store.FindByEmail(ctx, c.AdminEmail)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestCompleteSetupFailureKeepsTokenUsable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.register(t, "NPO-8")
	token := f.approve(t, c)

	// the admin email is already taken, so user creation fails inside the unit
	require.NoError(t, f.store.CreateUser(ctx, &user.User{Email: c.AdminEmail, Roles: []string{string(user.RoleMember)}}))

	_, err := f.svc.CompleteSetup(ctx, token, "s3cure-pass")
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	status, err := f.svc.ValidateSetupToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, status.Valid)

	_, err = f.svc.CompleteSetup(ctx, token, "short")
	assert.ErrorIs(t, err, user.ErrWeakPassword)
}

func TestValidateUnknownToken(t *testing.T) {
	f := newFixture(t)

	status, err := f.svc.ValidateSetupToken(context.Background(), "not-a-token")
	require.NoError(t, err)
	assert.False(t, status.Valid)
	assert.Nil(t, status.Church)

	status, err = f.svc.ValidateSetupToken(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, status.Valid)
}
