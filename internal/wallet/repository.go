package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreateWallet(ctx context.Context, wallet *Wallet) error
	GetWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error)
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	// LockWalletsByUserID loads and row-locks the wallets of the given users,
	// keyed by user id. Users without a wallet are absent from the map.
	LockWalletsByUserID(ctx context.Context, userIDs ...uuid.UUID) (map[uuid.UUID]*Wallet, error)
	LockWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error)
	// AdjustBalance applies the deltas only if neither balance goes negative.
	AdjustBalance(ctx context.Context, walletID uuid.UUID, availableDelta, pendingDelta int64) error

	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error)
	// FinalizeTransaction moves a pending entry to tx.Status together with its
	// snapshots and failure reason.
	FinalizeTransaction(ctx context.Context, tx *Transaction) error
	GetTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error)
	CountTransactions(ctx context.Context, walletID uuid.UUID) (int64, error)
	SumCompleted(ctx context.Context, walletID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *Wallet) error {
	err := database.Conn(ctx, r.db).Create(wallet).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrWalletExists
	}
	return database.Wrap("create wallet", err)
}

func (r *repository) GetWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := database.Conn(ctx, r.db).Where("id = ?", walletID).First(&wallet).Error
	return foundWallet(&wallet, err)
}

func (r *repository) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := database.Conn(ctx, r.db).Where("user_id = ?", userID).First(&wallet).Error
	return foundWallet(&wallet, err)
}

func (r *repository) LockWalletsByUserID(ctx context.Context, userIDs ...uuid.UUID) (map[uuid.UUID]*Wallet, error) {
	var wallets []Wallet
	// ordered by id so two transfers over the same pair lock in the same order
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id IN ?", userIDs).
		Order("id").
		Find(&wallets).Error
	if err != nil {
		return nil, database.Wrap("lock wallets", err)
	}

	byUser := make(map[uuid.UUID]*Wallet, len(wallets))
	for i := range wallets {
		byUser[wallets[i].UserID] = &wallets[i]
	}
	return byUser, nil
}

func (r *repository) LockWallet(ctx context.Context, walletID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		First(&wallet).Error
	return foundWallet(&wallet, err)
}

func (r *repository) AdjustBalance(ctx context.Context, walletID uuid.UUID, availableDelta, pendingDelta int64) error {
	res := database.Conn(ctx, r.db).Model(&Wallet{}).
		Where("id = ? AND available_balance + ? >= 0 AND pending_balance + ? >= 0", walletID, availableDelta, pendingDelta).
		UpdateColumns(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance + ?", availableDelta),
			"pending_balance":   gorm.Expr("pending_balance + ?", pendingDelta),
			"updated_at":        time.Now().UTC(),
		})

	if res.Error != nil {
		return database.Wrap("adjust balance", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *repository) CreateTransaction(ctx context.Context, tx *Transaction) error {
	err := database.Conn(ctx, r.db).Create(tx).Error
	if errors.Is(err, ErrLedgerMismatch) || errors.Is(err, ErrInsufficientBalance) {
		return err
	}
	return database.Wrap("create transaction", err)
}

func (r *repository) GetTransactionByReference(ctx context.Context, ref string) (*Transaction, error) {
	var tx Transaction
	err := database.Conn(ctx, r.db).Where("reference = ?", ref).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, database.Wrap("get transaction", err)
	}
	return &tx, nil
}

func (r *repository) FinalizeTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}

	res := database.Conn(ctx, r.db).Model(&Transaction{}).
		Where("id = ? AND status = ?", tx.ID, TransactionPending).
		Updates(map[string]interface{}{
			"status":         tx.Status,
			"balance_before": tx.BalanceBefore,
			"balance_after":  tx.BalanceAfter,
			"failure_reason": tx.FailureReason,
		})

	if res.Error != nil {
		return database.Wrap("finalize transaction", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTransactionFinalized
	}
	return nil
}

func (r *repository) GetTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := database.Conn(ctx, r.db).Where("wallet_id = ?", walletID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, database.Wrap("list transactions", err)
}

func (r *repository) CountTransactions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&Transaction{}).Where("wallet_id = ?", walletID).Count(&count).Error
	return count, database.Wrap("count transactions", err)
}

func (r *repository) SumCompleted(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := database.Conn(ctx, r.db).Model(&Transaction{}).
		Where("wallet_id = ? AND status = ?", walletID, TransactionCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, database.Wrap("sum ledger", err)
}

func foundWallet(w *Wallet, err error) (*Wallet, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, database.Wrap("get wallet", err)
	}
	return w, nil
}
