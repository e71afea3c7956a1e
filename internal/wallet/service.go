package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
)

// Service is the only writer of wallet balances. Every balance change it makes
// is paired with a ledger entry inside the same unit of work.
type Service struct {
	repo     Repository
	tx       database.Transactor
	currency string
	users    user.Repository
}

type Option func(*Service)

// WithUsers lets Transfer see who owns a wallet. Wallets of church-linked
// users are then closed to peer-to-peer transfers in both directions, so
// church funds arrive only as donations and leave only as approved payouts.
func WithUsers(users user.Repository) Option {
	return func(s *Service) { s.users = users }
}

func NewService(repo Repository, tx database.Transactor, currency string, opts ...Option) *Service {
	s := &Service{repo: repo, tx: tx, currency: currency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type TransferRequest struct {
	FromUserID  uuid.UUID
	ToUserID    uuid.UUID
	Amount      int64
	Description string
}

// TransferResult is the outcome of a transfer. Callers must check Success;
// on failure Err carries one of the package errors or a persistence error.
type TransferResult struct {
	Success       bool      `json:"success"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	Err           error     `json:"-"`
}

// Movement describes a paired debit/credit between two users' wallets.
type Movement struct {
	FromUserID  uuid.UUID
	ToUserID    uuid.UUID
	Amount      int64
	DebitType   TransactionType
	CreditType  TransactionType
	Reference   string
	Description string
}

// Transfer moves funds between two users and returns the sender-side ledger
// entry id as the transfer id.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (res TransferResult) {
	defer func() {
		if p := recover(); p != nil {
			err := database.Wrap("transfer", fmt.Errorf("panic: %v", p))
			logger.Error("Transfer aborted", logger.Merge(logger.FromContext(ctx), logger.WithError(err)))
			metrics.LedgerFailures.WithLabelValues("transfer", "panic").Inc()
			res = TransferResult{Err: err}
		}
	}()

	if err := s.checkParties(ctx, req.FromUserID, req.ToUserID); err != nil {
		s.recordFailure(ctx, "transfer", err, logger.Fields{"from_user": req.FromUserID.String(), "to_user": req.ToUserID.String()})
		return TransferResult{Err: err}
	}

	sent, _, err := s.Move(ctx, Movement{
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		DebitType:   TransactionTransferSent,
		CreditType:  TransactionTransferReceived,
		Reference:   id.Reference("trf"),
		Description: req.Description,
	})
	if err != nil {
		return TransferResult{Err: err}
	}

	return TransferResult{Success: true, TransactionID: sent.ID}
}

func (s *Service) checkParties(ctx context.Context, userIDs ...uuid.UUID) error {
	if s.users == nil {
		return nil
	}
	for _, userID := range userIDs {
		u, err := s.users.FindByID(ctx, userID)
		if errors.Is(err, user.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if u.ChurchID != nil {
			return ErrChurchWallet
		}
	}
	return nil
}

// Move runs one atomic debit/credit. It joins the caller's unit of work when
// ctx already carries one.
func (s *Service) Move(ctx context.Context, m Movement) (sent, received *Transaction, err error) {
	kind := movementKind(m.DebitType)
	fields := logger.Fields{"from_user": m.FromUserID.String(), "to_user": m.ToUserID.String(), "amount": m.Amount}

	if m.Amount <= 0 {
		s.recordFailure(ctx, kind, ErrInvalidAmount, fields)
		return nil, nil, ErrInvalidAmount
	}
	if m.FromUserID == m.ToUserID {
		s.recordFailure(ctx, kind, ErrSelfTransfer, fields)
		return nil, nil, ErrSelfTransfer
	}
	if m.Reference == "" {
		m.Reference = id.Reference(kind)
	}

	err = s.tx.Transact(ctx, func(ctx context.Context) error {
		wallets, err := s.repo.LockWalletsByUserID(ctx, m.FromUserID, m.ToUserID)
		if err != nil {
			return err
		}

		sender, ok := wallets[m.FromUserID]
		if !ok {
			return fmt.Errorf("sender: %w", ErrWalletNotFound)
		}
		receiver, ok := wallets[m.ToUserID]
		if !ok {
			return fmt.Errorf("receiver: %w", ErrWalletNotFound)
		}

		if sender.Currency != receiver.Currency {
			return ErrCurrencyMismatch
		}

		if sender.AvailableBalance < m.Amount {
			return ErrInsufficientBalance
		}

		if err := s.repo.AdjustBalance(ctx, sender.ID, -m.Amount, 0); err != nil {
			return err
		}
		if err := s.repo.AdjustBalance(ctx, receiver.ID, m.Amount, 0); err != nil {
			return err
		}

		debit := &Transaction{
			WalletID:      sender.ID,
			Reference:     m.Reference + "-debit",
			Type:          m.DebitType,
			Amount:        -m.Amount,
			Currency:      sender.Currency,
			Status:        TransactionCompleted,
			FromWalletID:  &sender.ID,
			ToWalletID:    &receiver.ID,
			BalanceBefore: sender.AvailableBalance,
			BalanceAfter:  sender.AvailableBalance - m.Amount,
			Description:   m.Description,
		}
		if err := s.appendEntry(ctx, debit); err != nil {
			return err
		}

		credit := &Transaction{
			WalletID:      receiver.ID,
			Reference:     m.Reference + "-credit",
			Type:          m.CreditType,
			Amount:        m.Amount,
			Currency:      receiver.Currency,
			Status:        TransactionCompleted,
			FromWalletID:  &sender.ID,
			ToWalletID:    &receiver.ID,
			BalanceBefore: receiver.AvailableBalance,
			BalanceAfter:  receiver.AvailableBalance + m.Amount,
			Description:   m.Description,
		}
		if err := s.appendEntry(ctx, credit); err != nil {
			return err
		}

		sent, received = debit, credit
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, kind, err, fields)
		return nil, nil, err
	}

	metrics.LedgerMovements.WithLabelValues(kind).Inc()
	logger.Info("Ledger movement completed", logger.Merge(logger.FromContext(ctx), logger.Fields{
		"kind":      kind,
		"reference": m.Reference,
		"amount":    m.Amount,
	}))
	return sent, received, nil
}

// EnsureWallet returns the user's wallet, creating an empty one on first use.
func (s *Service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	w, err := s.repo.GetWalletByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w = &Wallet{UserID: userID, Currency: s.currency}
	if err := s.repo.CreateWallet(ctx, w); err != nil {
		if errors.Is(err, ErrWalletExists) {
			return s.repo.GetWalletByUserID(ctx, userID)
		}
		return nil, err
	}

	logger.Info("Wallet created", logger.Fields{logger.UserIdKey: userID.String(), logger.WalletIDKey: w.ID.String()})
	return w, nil
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetWalletByUserID(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int64, error) {
	w, err := s.repo.GetWalletByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	txs, err := s.repo.GetTransactions(ctx, w.ID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	count, err := s.repo.CountTransactions(ctx, w.ID)
	if err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}

// InitiateTopUp records a pending top-up. The amount is held in the pending
// balance until the gateway confirms or fails it.
func (s *Service) InitiateTopUp(ctx context.Context, userID uuid.UUID, amount int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *Transaction
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		wallets, err := s.repo.LockWalletsByUserID(ctx, userID)
		if err != nil {
			return err
		}
		w, ok := wallets[userID]
		if !ok {
			return ErrWalletNotFound
		}

		if err := s.repo.AdjustBalance(ctx, w.ID, 0, amount); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:      w.ID,
			Reference:     id.Reference("top"),
			Type:          TransactionTopUp,
			Amount:        amount,
			Currency:      w.Currency,
			Status:        TransactionPending,
			ToWalletID:    &w.ID,
			BalanceBefore: w.AvailableBalance,
			BalanceAfter:  w.AvailableBalance,
			Description:   "Wallet top-up",
		}
		return s.repo.CreateTransaction(ctx, entry)
	})
	if err != nil {
		s.recordFailure(ctx, "topup", err, logger.Fields{logger.UserIdKey: userID.String()})
		return nil, err
	}
	return entry, nil
}

// CompleteTopUp credits a pending top-up. Completing an already completed
// top-up is a no-op so gateway retries are safe.
func (s *Service) CompleteTopUp(ctx context.Context, reference string, amount int64) error {
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		entry, err := s.pendingTopUp(ctx, reference)
		if err != nil || entry == nil {
			return err
		}
		if entry.Amount != amount {
			return ErrAmountMismatch
		}

		w, err := s.repo.LockWallet(ctx, entry.WalletID)
		if err != nil {
			return err
		}
		if err := s.repo.AdjustBalance(ctx, w.ID, amount, -amount); err != nil {
			return err
		}

		entry.Status = TransactionCompleted
		entry.BalanceBefore = w.AvailableBalance
		entry.BalanceAfter = w.AvailableBalance + amount
		return s.repo.FinalizeTransaction(ctx, entry)
	})
	if err != nil {
		s.recordFailure(ctx, "topup", err, logger.Fields{"reference": reference})
		return err
	}

	metrics.LedgerMovements.WithLabelValues("topup").Inc()
	return nil
}

func (s *Service) FailTopUp(ctx context.Context, reference, reason string) error {
	return s.tx.Transact(ctx, func(ctx context.Context) error {
		entry, err := s.pendingTopUp(ctx, reference)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrTransactionFinalized
		}

		w, err := s.repo.LockWallet(ctx, entry.WalletID)
		if err != nil {
			return err
		}
		if err := s.repo.AdjustBalance(ctx, w.ID, 0, -entry.Amount); err != nil {
			return err
		}

		entry.Status = TransactionFailed
		entry.FailureReason = &reason
		return s.repo.FinalizeTransaction(ctx, entry)
	})
}

// pendingTopUp returns nil, nil when the top-up is already completed.
func (s *Service) pendingTopUp(ctx context.Context, reference string) (*Transaction, error) {
	entry, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Type != TransactionTopUp {
		return nil, ErrTransactionNotFound
	}

	switch entry.Status {
	case TransactionCompleted:
		return nil, nil
	case TransactionFailed:
		return nil, ErrTransactionFinalized
	}
	return entry, nil
}

// Withdraw debits a single wallet for a payout. It is meant to run inside the
// payout decision's unit of work.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, reference, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *Transaction
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		wallets, err := s.repo.LockWalletsByUserID(ctx, userID)
		if err != nil {
			return err
		}
		w, ok := wallets[userID]
		if !ok {
			return ErrWalletNotFound
		}
		if w.AvailableBalance < amount {
			return ErrInsufficientBalance
		}

		if err := s.repo.AdjustBalance(ctx, w.ID, -amount, 0); err != nil {
			return err
		}

		entry = &Transaction{
			WalletID:      w.ID,
			Reference:     reference,
			Type:          TransactionPayout,
			Amount:        -amount,
			Currency:      w.Currency,
			Status:        TransactionCompleted,
			FromWalletID:  &w.ID,
			BalanceBefore: w.AvailableBalance,
			BalanceAfter:  w.AvailableBalance - amount,
			Description:   description,
		}
		return s.appendEntry(ctx, entry)
	})
	if err != nil {
		s.recordFailure(ctx, "payout", err, logger.Fields{logger.UserIdKey: userID.String(), "amount": amount})
		return nil, err
	}

	metrics.LedgerMovements.WithLabelValues("payout").Inc()
	return entry, nil
}

type Reconciliation struct {
	WalletID         uuid.UUID `json:"wallet_id"`
	AvailableBalance int64     `json:"available_balance"`
	LedgerBalance    int64     `json:"ledger_balance"`
	Balanced         bool      `json:"balanced"`
}

// Reconcile compares the stored available balance with the sum of completed
// ledger entries. The wallet row is locked so the comparison is consistent.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	var rec *Reconciliation
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		wallets, err := s.repo.LockWalletsByUserID(ctx, userID)
		if err != nil {
			return err
		}
		w, ok := wallets[userID]
		if !ok {
			return ErrWalletNotFound
		}

		sum, err := s.repo.SumCompleted(ctx, w.ID)
		if err != nil {
			return err
		}

		rec = &Reconciliation{
			WalletID:         w.ID,
			AvailableBalance: w.AvailableBalance,
			LedgerBalance:    sum,
			Balanced:         sum == w.AvailableBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rec.Balanced {
		logger.Error("Wallet does not reconcile", logger.Fields{
			logger.WalletIDKey: rec.WalletID.String(),
			"available":        rec.AvailableBalance,
			"ledger":           rec.LedgerBalance,
		})
	}
	return rec, nil
}

func (s *Service) appendEntry(ctx context.Context, entry *Transaction) error {
	if err := entry.Verify(); err != nil {
		return err
	}
	return s.repo.CreateTransaction(ctx, entry)
}

func (s *Service) recordFailure(ctx context.Context, kind string, err error, fields logger.Fields) {
	fields = logger.Merge(logger.FromContext(ctx), fields, logger.Fields{"kind": kind}, logger.WithError(err))
	if errors.Is(err, database.ErrPersistence) {
		logger.Error("Ledger operation failed", fields)
		metrics.LedgerFailures.WithLabelValues(kind, "persistence").Inc()
		return
	}
	logger.Warn("Ledger operation rejected", fields)
	metrics.LedgerFailures.WithLabelValues(kind, FailureReason(err)).Inc()
}

// FailureReason maps err to a short label for metrics and API responses.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrLedgerMismatch):
		return "ledger_mismatch"
	case errors.Is(err, ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, ErrChurchWallet):
		return "church_wallet"
	case errors.Is(err, database.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}

func movementKind(debit TransactionType) string {
	switch debit {
	case TransactionDonation:
		return "donation"
	case TransactionPayout:
		return "payout"
	default:
		return "transfer"
	}
}
