package wallet

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("user already has a wallet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrCurrencyMismatch    = errors.New("wallets hold different currencies")
	ErrLedgerMismatch      = errors.New("ledger does not reconcile with wallet balance")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrTransactionFinalized is returned when a pending entry has already
	// been completed or failed.
	ErrTransactionFinalized = errors.New("transaction already finalized")
	ErrAmountMismatch       = errors.New("amount does not match pending transaction")
	// ErrChurchWallet is returned for peer-to-peer transfers touching a
	// church wallet.
	ErrChurchWallet = errors.New("church wallets only accept donations and pay out through approved payouts")
)
