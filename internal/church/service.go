package church

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
)

const DefaultTokenTTL = 24 * time.Hour

// Notifier delivers the outcome of a church application to its admin contact.
type Notifier interface {
	SendApprovalNotification(ctx context.Context, church Church, setupURL string) error
	SendRejectionNotification(ctx context.Context, church Church, reason string) error
}

type Options struct {
	// SetupURL is the page that completes admin setup; the token is appended
	// as the "token" query parameter.
	SetupURL string
	TokenTTL time.Duration
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	users    user.Repository
	ledger   *wallet.Service
	tx       database.Transactor
	notifier Notifier

	setupURL string
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(repo Repository, users user.Repository, ledger *wallet.Service, tx database.Transactor, notifier Notifier, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     repo,
		users:    users,
		ledger:   ledger,
		tx:       tx,
		notifier: notifier,
		setupURL: opts.SetupURL,
		tokenTTL: opts.TokenTTL,
		now:      opts.Now,
	}
}

type RegisterRequest struct {
	Name               string `json:"name" validate:"required,max=200"`
	RegistrationNumber string `json:"registration_number" validate:"required,max=64"`
	Denomination       string `json:"denomination" validate:"max=100"`
	Address            string `json:"address" validate:"max=255"`
	City               string `json:"city" validate:"max=100"`
	Province           string `json:"province" validate:"max=100"`
	AdminFirstName     string `json:"admin_first_name" validate:"required,max=100"`
	AdminLastName      string `json:"admin_last_name" validate:"required,max=100"`
	AdminEmail         string `json:"admin_email" validate:"required,email"`
	AdminPhone         string `json:"admin_phone" validate:"max=32"`
	BankName           string `json:"bank_name" validate:"max=100"`
	BankAccountNumber  string `json:"bank_account_number" validate:"omitempty,numeric,max=20"`
	BankBranchCode     string `json:"bank_branch_code" validate:"omitempty,numeric,max=10"`
	BankAccountHolder  string `json:"bank_account_holder" validate:"max=200"`
}

// Register records a new church application in the pending state.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Church, error) {
	c := &Church{
		Name:               strings.TrimSpace(req.Name),
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		Denomination:       req.Denomination,
		Address:            req.Address,
		City:               req.City,
		Province:           req.Province,
		AdminFirstName:     strings.TrimSpace(req.AdminFirstName),
		AdminLastName:      strings.TrimSpace(req.AdminLastName),
		AdminEmail:         user.NormalizeEmail(req.AdminEmail),
		AdminPhone:         req.AdminPhone,
		BankName:           req.BankName,
		BankAccountNumber:  req.BankAccountNumber,
		BankBranchCode:     req.BankBranchCode,
		BankAccountHolder:  req.BankAccountHolder,
		Status:             StatusPending,
	}
	if c.Name == "" || c.RegistrationNumber == "" || c.AdminEmail == "" {
		return nil, ErrInvalidRegistration
	}

	if err := s.repo.CreateChurch(ctx, c); err != nil {
		return nil, err
	}

	logger.Info("Church registered", logger.Merge(logger.FromContext(ctx), logger.Fields{
		logger.ChurchIDKey: c.ID.String(),
		"registration":     c.RegistrationNumber,
	}))
	return c, nil
}

// Approve moves a pending church to approved and mails its admin a single-use
// setup link. A failed notification is logged and does not undo the approval.
func (s *Service) Approve(ctx context.Context, churchID, approverID uuid.UUID) (*Church, error) {
	var token string
	c, err := s.transition(ctx, churchID, []Status{StatusPending}, func(c *Church) error {
		var err error
		token, err = id.NewToken()
		if err != nil {
			return err
		}

		now := s.now()
		hash := id.HashToken(token)
		expires := now.Add(s.tokenTTL)

		c.Status = StatusApproved
		c.StatusReason = nil
		c.ReviewedBy = &approverID
		c.ReviewedAt = &now
		c.SetupTokenHash = &hash
		c.SetupTokenExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendApprovalNotification(ctx, *c, s.setupLink(token)); err != nil {
		logger.Error("Failed to send approval notification", logger.Merge(logger.FromContext(ctx), logger.Fields{
			logger.ChurchIDKey: c.ID.String(),
		}, logger.WithError(err)))
	}
	return c, nil
}

func (s *Service) Reject(ctx context.Context, churchID, approverID uuid.UUID, reason string) (*Church, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	c, err := s.transition(ctx, churchID, []Status{StatusPending}, func(c *Church) error {
		now := s.now()
		c.Status = StatusRejected
		c.StatusReason = &reason
		c.ReviewedBy = &approverID
		c.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendRejectionNotification(ctx, *c, reason); err != nil {
		logger.Error("Failed to send rejection notification", logger.Merge(logger.FromContext(ctx), logger.Fields{
			logger.ChurchIDKey: c.ID.String(),
		}, logger.WithError(err)))
	}
	return c, nil
}

// MarkUnderReview puts a pending application on hold, e.g. while documents
// are checked.
func (s *Service) MarkUnderReview(ctx context.Context, churchID uuid.UUID, note string) (*Church, error) {
	return s.transition(ctx, churchID, []Status{StatusPending}, func(c *Church) error {
		c.Status = StatusUnderReview
		c.StatusReason = optional(note)
		return nil
	})
}

func (s *Service) ResumeReview(ctx context.Context, churchID uuid.UUID) (*Church, error) {
	return s.transition(ctx, churchID, []Status{StatusUnderReview}, func(c *Church) error {
		c.Status = StatusPending
		c.StatusReason = nil
		return nil
	})
}

// Suspend freezes a church. The status it held is kept so Reinstate can
// restore it.
func (s *Service) Suspend(ctx context.Context, churchID uuid.UUID, reason string) (*Church, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	return s.transition(ctx, churchID, []Status{StatusPending, StatusUnderReview, StatusApproved}, func(c *Church) error {
		prev := c.Status
		c.SuspendedFrom = &prev
		c.Status = StatusSuspended
		c.StatusReason = &reason
		return nil
	})
}

func (s *Service) Reinstate(ctx context.Context, churchID uuid.UUID) (*Church, error) {
	return s.transition(ctx, churchID, []Status{StatusSuspended}, func(c *Church) error {
		to := StatusPending
		if c.SuspendedFrom != nil {
			to = *c.SuspendedFrom
		}
		c.Status = to
		c.SuspendedFrom = nil
		c.StatusReason = nil
		return nil
	})
}

// transition locks the church, checks that its status is one of allowed,
// applies the change and persists it guarded by the status it was read with.
func (s *Service) transition(ctx context.Context, churchID uuid.UUID, allowed []Status, apply func(c *Church) error) (*Church, error) {
	var from Status
	var updated *Church

	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		c, err := s.repo.LockChurch(ctx, churchID)
		if err != nil {
			return err
		}

		from = c.Status
		if !slices.Contains(allowed, from) {
			return ErrInvalidState
		}

		if err := apply(c); err != nil {
			return err
		}
		if !CanTransition(from, c.Status) {
			return ErrInvalidState
		}

		if err := s.repo.UpdateChurchStatus(ctx, c, from); err != nil {
			return err
		}
		updated = c
		return nil
	})

	fields := logger.Merge(logger.FromContext(ctx), logger.Fields{logger.ChurchIDKey: churchID.String()})
	if err != nil {
		if errors.Is(err, database.ErrPersistence) {
			logger.Error("Church status change failed", logger.Merge(fields, logger.WithError(err)))
		}
		return nil, err
	}

	metrics.ChurchTransitions.WithLabelValues(string(updated.Status)).Inc()
	logger.Info("Church status changed", logger.Merge(fields, logger.Fields{
		"from": string(from),
		"to":   string(updated.Status),
	}))
	return updated, nil
}

type SetupTokenStatus struct {
	Valid  bool    `json:"valid"`
	Church *Church `json:"church,omitempty"`
}

// ValidateSetupToken reports whether token can still complete setup. It does
// not consume the token.
func (s *Service) ValidateSetupToken(ctx context.Context, token string) (SetupTokenStatus, error) {
	if token == "" {
		return SetupTokenStatus{}, nil
	}

	c, err := s.repo.GetChurchBySetupToken(ctx, id.HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return SetupTokenStatus{}, nil
	}
	if err != nil {
		return SetupTokenStatus{}, err
	}

	if c.Status != StatusApproved || c.SetupTokenExpiresAt == nil || s.now().After(*c.SetupTokenExpiresAt) {
		return SetupTokenStatus{}, nil
	}
	return SetupTokenStatus{Valid: true, Church: c}, nil
}

// CompleteSetup consumes token and creates the church admin account and its
// wallet. Either all of it happens or the token stays usable.
func (s *Service) CompleteSetup(ctx context.Context, token, password string) (*user.User, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	hash, err := user.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var admin *user.User
	var church *Church
	err = s.tx.Transact(ctx, func(ctx context.Context) error {
		c, err := s.repo.ClaimSetupToken(ctx, id.HashToken(token), s.now())
		if err != nil {
			return err
		}
		if c.Status != StatusApproved || c.AdminUserID != nil {
			return ErrInvalidState
		}

		u := &user.User{
			Name:         strings.TrimSpace(c.AdminFirstName + " " + c.AdminLastName),
			Email:        c.AdminEmail,
			PasswordHash: hash,
			Roles:        []string{string(user.RoleChurchAdmin)},
			ChurchID:     &c.ID,
		}
		if err := s.users.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := s.repo.LinkAdminUser(ctx, c.ID, u.ID); err != nil {
			return err
		}
		if _, err := s.ledger.EnsureWallet(ctx, u.ID); err != nil {
			return err
		}

		c.AdminUserID = &u.ID
		admin, church = u, c
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrPersistence) {
			logger.Error("Church setup failed", logger.Merge(logger.FromContext(ctx), logger.WithError(err)))
		}
		return nil, err
	}

	logger.Info("Church setup completed", logger.Merge(logger.FromContext(ctx), logger.Fields{
		logger.ChurchIDKey: church.ID.String(),
		logger.UserIdKey:   admin.ID.String(),
	}))
	return admin, nil
}

func (s *Service) Get(ctx context.Context, churchID uuid.UUID) (*Church, error) {
	return s.repo.GetChurch(ctx, churchID)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Church, int64, error) {
	return s.repo.ListChurches(ctx, filter)
}

func (s *Service) setupLink(token string) string {
	if s.setupURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.setupURL, "?") {
		sep = "&"
	}
	return s.setupURL + sep + "token=" + url.QueryEscape(token)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
