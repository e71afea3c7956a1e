package payout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/money"
)

type Service struct {
	repo     Repository
	churches church.Repository
	ledger   *wallet.Service
	tx       database.Transactor
	now      func() time.Time
}

func NewService(repo Repository, churches church.Repository, ledger *wallet.Service, tx database.Transactor) *Service {
	return &Service{
		repo:     repo,
		churches: churches,
		ledger:   ledger,
		tx:       tx,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type Request struct {
	ChurchID    uuid.UUID
	Amount      int64
	Category    string
	Description string
	RequestedBy uuid.UUID
}

// RequestPayout files a withdrawal request against the church wallet. The
// balance check here is advisory; DecidePayout enforces it.
func (s *Service) RequestPayout(ctx context.Context, req Request) (*Payout, error) {
	if req.Amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}

	c, err := s.churches.GetChurch(ctx, req.ChurchID)
	if err != nil {
		return nil, err
	}
	if !c.CanReceiveFunds() {
		return nil, church.ErrNotApproved
	}

	w, err := s.ledger.GetWallet(ctx, *c.AdminUserID)
	if err != nil {
		return nil, err
	}
	if req.Amount > w.AvailableBalance {
		return nil, wallet.ErrInsufficientBalance
	}

	p := &Payout{
		ChurchID:    c.ID,
		Reference:   id.Reference("pay"),
		Amount:      req.Amount,
		Currency:    w.Currency,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Status:      StatusRequested,
		RequestedBy: req.RequestedBy,
	}
	if err := s.repo.CreatePayout(ctx, p); err != nil {
		return nil, err
	}

	logger.Info("Payout requested", logger.Merge(logger.FromContext(ctx), logger.Fields{
		logger.ChurchIDKey: c.ID.String(),
		"payout_id":        p.ID.String(),
		"amount":           money.Format(p.Amount, p.Currency),
	}))
	return p, nil
}

// DecidePayout approves or rejects a requested payout. Approval reconciles the
// church wallet and debits it in the same unit of work as the status change.
func (s *Service) DecidePayout(ctx context.Context, payoutID uuid.UUID, decision Decision, processorID uuid.UUID, reason string) (*Payout, error) {
	reason = strings.TrimSpace(reason)
	switch decision {
	case DecisionApprove:
	case DecisionReject:
		if reason == "" {
			return nil, ErrReasonRequired
		}
	default:
		return nil, ErrInvalidDecision
	}

	var decided *Payout
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != StatusRequested {
			return ErrInvalidState
		}

		now := s.now()
		p.ProcessedBy = &processorID
		p.ProcessedAt = &now

		if decision == DecisionReject {
			p.Status = StatusRejected
			p.RejectionReason = &reason
		} else {
			entry, err := s.debitChurch(ctx, p)
			if err != nil {
				return err
			}
			p.Status = StatusApproved
			p.TransactionID = &entry.ID
		}

		if err := s.repo.UpdatePayout(ctx, p, StatusRequested); err != nil {
			return err
		}
		decided = p
		return nil
	})

	fields := logger.Merge(logger.FromContext(ctx), logger.Fields{"payout_id": payoutID.String(), "decision": string(decision)})
	if err != nil {
		if errors.Is(err, database.ErrPersistence) {
			logger.Error("Payout decision failed", logger.Merge(fields, logger.WithError(err)))
		} else {
			logger.Warn("Payout decision refused", logger.Merge(fields, logger.WithError(err)))
		}
		return nil, err
	}

	metrics.PayoutDecisions.WithLabelValues(string(decision)).Inc()
	logger.Info("Payout decided", fields)
	return decided, nil
}

func (s *Service) debitChurch(ctx context.Context, p *Payout) (*wallet.Transaction, error) {
	c, err := s.churches.LockChurch(ctx, p.ChurchID)
	if err != nil {
		return nil, err
	}
	if !c.CanReceiveFunds() {
		return nil, church.ErrNotApproved
	}

	rec, err := s.ledger.Reconcile(ctx, *c.AdminUserID)
	if err != nil {
		return nil, err
	}
	if !rec.Balanced {
		return nil, wallet.ErrLedgerMismatch
	}
	if p.Amount > rec.AvailableBalance {
		return nil, wallet.ErrInsufficientBalance
	}

	return s.ledger.Withdraw(ctx, *c.AdminUserID, p.Amount, p.Reference, "Payout: "+p.Category)
}

// CompletePayout marks an approved payout as paid out to the bank.
func (s *Service) CompletePayout(ctx context.Context, payoutID, processorID uuid.UUID) (*Payout, error) {
	var completed *Payout
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != StatusApproved {
			return ErrInvalidState
		}

		now := s.now()
		p.Status = StatusCompleted
		p.CompletedAt = &now
		p.ProcessedBy = &processorID
		if err := s.repo.UpdatePayout(ctx, p, StatusApproved); err != nil {
			return err
		}
		completed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PayoutDecisions.WithLabelValues("complete").Inc()
	logger.Info("Payout completed", logger.Merge(logger.FromContext(ctx), logger.Fields{"payout_id": payoutID.String()}))
	return completed, nil
}

func (s *Service) Get(ctx context.Context, payoutID uuid.UUID) (*Payout, error) {
	return s.repo.GetPayout(ctx, payoutID)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Payout, int64, error) {
	return s.repo.ListPayouts(ctx, filter)
}
