package donation

import (
	"context"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
)

type Service struct {
	churches church.Repository
	ledger   *wallet.Service
	tx       database.Transactor
}

func NewService(churches church.Repository, ledger *wallet.Service, tx database.Transactor) *Service {
	return &Service{churches: churches, ledger: ledger, tx: tx}
}

type Receipt struct {
	ChurchID      uuid.UUID `json:"church_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	// BalanceAfter is the donor's available balance once the donation settled.
	BalanceAfter int64 `json:"balance_after"`
}

// Donate moves funds from the member's wallet to the wallet of the church's
// admin. The church row is locked for the duration so a concurrent suspension
// cannot slip in between the status check and the movement.
func (s *Service) Donate(ctx context.Context, memberID, churchID uuid.UUID, amount int64, description string) (*Receipt, error) {
	var receipt *Receipt
	err := s.tx.Transact(ctx, func(ctx context.Context) error {
		c, err := s.churches.LockChurch(ctx, churchID)
		if err != nil {
			return err
		}
		if !c.CanReceiveFunds() {
			return church.ErrNotApproved
		}

		if description == "" {
			description = "Donation to " + c.Name
		}

		sent, _, err := s.ledger.Move(ctx, wallet.Movement{
			FromUserID:  memberID,
			ToUserID:    *c.AdminUserID,
			Amount:      amount,
			DebitType:   wallet.TransactionDonation,
			CreditType:  wallet.TransactionDonation,
			Reference:   id.Reference("don"),
			Description: description,
		})
		if err != nil {
			return err
		}

		receipt = &Receipt{
			ChurchID:      c.ID,
			TransactionID: sent.ID,
			Reference:     sent.Reference,
			Amount:        amount,
			Currency:      sent.Currency,
			BalanceAfter:  sent.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Donation received", logger.Merge(logger.FromContext(ctx), logger.Fields{
		logger.ChurchIDKey: churchID.String(),
		logger.UserIdKey:   memberID.String(),
		"amount":           amount,
	}))
	return receipt, nil
}
