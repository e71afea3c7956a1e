package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
)

func (s *Store) CreateWallet(ctx context.Context, w *wallet.Wallet) error {
	st, done := s.view(ctx)
	defer done()

	for _, existing := range st.wallets {
		if existing.UserID == w.UserID {
			return wallet.ErrWalletExists
		}
	}

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.AvailableBalance < 0 {
		return wallet.ErrInsufficientBalance
	}
	w.CreatedAt = now()
	w.UpdatedAt = w.CreatedAt
	st.wallets[w.ID] = *w
	return nil
}

func (s *Store) GetWallet(ctx context.Context, walletID uuid.UUID) (*wallet.Wallet, error) {
	st, done := s.view(ctx)
	defer done()

	w, ok := st.wallets[walletID]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return &w, nil
}

func (s *Store) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	st, done := s.view(ctx)
	defer done()

	for _, w := range st.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, wallet.ErrWalletNotFound
}

func (s *Store) LockWalletsByUserID(ctx context.Context, userIDs ...uuid.UUID) (map[uuid.UUID]*wallet.Wallet, error) {
	st, done := s.view(ctx)
	defer done()

	byUser := make(map[uuid.UUID]*wallet.Wallet, len(userIDs))
	for _, w := range st.wallets {
		if slices.Contains(userIDs, w.UserID) {
			w := w
			byUser[w.UserID] = &w
		}
	}
	return byUser, nil
}

func (s *Store) LockWallet(ctx context.Context, walletID uuid.UUID) (*wallet.Wallet, error) {
	return s.GetWallet(ctx, walletID)
}

func (s *Store) AdjustBalance(ctx context.Context, walletID uuid.UUID, availableDelta, pendingDelta int64) error {
	st, done := s.view(ctx)
	defer done()

	w, ok := st.wallets[walletID]
	if !ok || w.AvailableBalance+availableDelta < 0 || w.PendingBalance+pendingDelta < 0 {
		return wallet.ErrInsufficientBalance
	}

	w.AvailableBalance += availableDelta
	w.PendingBalance += pendingDelta
	w.UpdatedAt = now()
	st.wallets[walletID] = w
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *wallet.Transaction) error {
	st, done := s.view(ctx)
	defer done()

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if err := tx.Verify(); err != nil {
		return err
	}
	for _, existing := range st.transactions {
		if existing.Reference == tx.Reference {
			return database.Wrap("create transaction", errDuplicate)
		}
	}

	tx.CreatedAt = now()
	tx.UpdatedAt = tx.CreatedAt
	st.transactions = append(st.transactions, *tx)
	return nil
}

func (s *Store) GetTransactionByReference(ctx context.Context, ref string) (*wallet.Transaction, error) {
	st, done := s.view(ctx)
	defer done()

	for _, tx := range st.transactions {
		if tx.Reference == ref {
			return &tx, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (s *Store) FinalizeTransaction(ctx context.Context, tx *wallet.Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}

	st, done := s.view(ctx)
	defer done()

	for i, existing := range st.transactions {
		if existing.ID != tx.ID {
			continue
		}
		if existing.Status != wallet.TransactionPending {
			return wallet.ErrTransactionFinalized
		}
		existing.Status = tx.Status
		existing.BalanceBefore = tx.BalanceBefore
		existing.BalanceAfter = tx.BalanceAfter
		existing.FailureReason = tx.FailureReason
		existing.UpdatedAt = now()
		st.transactions[i] = existing
		return nil
	}
	return wallet.ErrTransactionFinalized
}

func (s *Store) GetTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]wallet.Transaction, error) {
	st, done := s.view(ctx)
	defer done()

	var txs []wallet.Transaction
	for i := len(st.transactions) - 1; i >= 0; i-- {
		if st.transactions[i].WalletID == walletID {
			txs = append(txs, st.transactions[i])
		}
	}
	return page(txs, limit, offset), nil
}

func (s *Store) CountTransactions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	st, done := s.view(ctx)
	defer done()

	var count int64
	for _, tx := range st.transactions {
		if tx.WalletID == walletID {
			count++
		}
	}
	return count, nil
}

func (s *Store) SumCompleted(ctx context.Context, walletID uuid.UUID) (int64, error) {
	st, done := s.view(ctx)
	defer done()

	var sum int64
	for _, tx := range st.transactions {
		if tx.WalletID == walletID && tx.Status == wallet.TransactionCompleted {
			sum += tx.Amount
		}
	}
	return sum, nil
}
