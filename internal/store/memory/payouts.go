package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/payout"
	"github.com/zjoart/churpay/pkg/database"
)

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	st, done := s.view(ctx)
	defer done()

	for _, existing := range st.payouts {
		if existing.Reference == p.Reference {
			return database.Wrap("create payout", errDuplicate)
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = payout.StatusRequested
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	st.payouts[p.ID] = *p
	st.payoutOrder = append(st.payoutOrder, p.ID)
	return nil
}

func (s *Store) GetPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	st, done := s.view(ctx)
	defer done()

	p, ok := st.payouts[id]
	if !ok {
		return nil, payout.ErrNotFound
	}
	return &p, nil
}

func (s *Store) LockPayout(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return s.GetPayout(ctx, id)
}

func (s *Store) UpdatePayout(ctx context.Context, p *payout.Payout, from payout.Status) error {
	st, done := s.view(ctx)
	defer done()

	stored, ok := st.payouts[p.ID]
	if !ok || stored.Status != from {
		return payout.ErrInvalidState
	}

	stored.Status = p.Status
	stored.ProcessedBy = p.ProcessedBy
	stored.ProcessedAt = p.ProcessedAt
	stored.RejectionReason = p.RejectionReason
	stored.TransactionID = p.TransactionID
	stored.CompletedAt = p.CompletedAt
	stored.UpdatedAt = now()
	st.payouts[p.ID] = stored
	return nil
}

func (s *Store) ListPayouts(ctx context.Context, filter payout.Filter) ([]payout.Payout, int64, error) {
	st, done := s.view(ctx)
	defer done()

	var payouts []payout.Payout
	for i := len(st.payoutOrder) - 1; i >= 0; i-- {
		p := st.payouts[st.payoutOrder[i]]
		if filter.ChurchID != nil && p.ChurchID != *filter.ChurchID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		payouts = append(payouts, p)
	}
	return page(payouts, filter.Limit, filter.Offset), int64(len(payouts)), nil
}
