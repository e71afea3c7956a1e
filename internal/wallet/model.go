package wallet

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Wallet struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primary_key" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	AvailableBalance int64     `gorm:"not null;default:0;check:available_balance >= 0" json:"available_balance"`
	PendingBalance   int64     `gorm:"not null;default:0" json:"pending_balance"`
	Currency         string    `gorm:"not null;default:ZAR" json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type TransactionType string

const (
	TransactionTransferSent     TransactionType = "transfer_sent"
	TransactionTransferReceived TransactionType = "transfer_received"
	TransactionTopUp            TransactionType = "topup"
	TransactionDonation         TransactionType = "donation"
	TransactionPayout           TransactionType = "payout"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is one ledger entry. Amount is signed: debits are negative.
type Transaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primary_key" json:"id"`
	WalletID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Reference     string            `gorm:"uniqueIndex;not null" json:"reference"`
	Type          TransactionType   `gorm:"not null" json:"type"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Currency      string            `gorm:"not null" json:"currency"`
	Status        TransactionStatus `gorm:"not null;index" json:"status"`
	FromWalletID  *uuid.UUID        `gorm:"type:uuid" json:"from_wallet_id,omitempty"`
	ToWalletID    *uuid.UUID        `gorm:"type:uuid" json:"to_wallet_id,omitempty"`
	BalanceBefore int64             `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64             `gorm:"not null" json:"balance_after"`
	Description   string            `json:"description"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return t.Verify()
}

// Verify checks the balance snapshot of a completed entry.
func (t *Transaction) Verify() error {
	if t.Status != TransactionCompleted {
		return nil
	}
	if t.BalanceAfter != t.BalanceBefore+t.Amount {
		return ErrLedgerMismatch
	}
	if t.BalanceAfter < 0 {
		return ErrInsufficientBalance
	}
	return nil
}
