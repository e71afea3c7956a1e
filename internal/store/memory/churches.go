package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/pkg/database"
)

func (s *Store) CreateChurch(ctx context.Context, c *church.Church) error {
	st, done := s.view(ctx)
	defer done()

	for _, existing := range st.churches {
		if existing.RegistrationNumber == c.RegistrationNumber {
			return church.ErrDuplicateChurch
		}
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = church.StatusPending
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	st.churches[c.ID] = *c
	st.churchOrder = append(st.churchOrder, c.ID)
	return nil
}

func (s *Store) GetChurch(ctx context.Context, id uuid.UUID) (*church.Church, error) {
	st, done := s.view(ctx)
	defer done()

	c, ok := st.churches[id]
	if !ok {
		return nil, church.ErrNotFound
	}
	return &c, nil
}

func (s *Store) LockChurch(ctx context.Context, id uuid.UUID) (*church.Church, error) {
	return s.GetChurch(ctx, id)
}

func (s *Store) GetChurchBySetupToken(ctx context.Context, tokenHash string) (*church.Church, error) {
	st, done := s.view(ctx)
	defer done()

	for _, c := range st.churches {
		if c.SetupTokenHash != nil && *c.SetupTokenHash == tokenHash {
			return &c, nil
		}
	}
	return nil, church.ErrNotFound
}

func (s *Store) ListChurches(ctx context.Context, filter church.Filter) ([]church.Church, int64, error) {
	st, done := s.view(ctx)
	defer done()

	var churches []church.Church
	for i := len(st.churchOrder) - 1; i >= 0; i-- {
		c := st.churches[st.churchOrder[i]]
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		churches = append(churches, c)
	}
	return page(churches, filter.Limit, filter.Offset), int64(len(churches)), nil
}

func (s *Store) UpdateChurchStatus(ctx context.Context, c *church.Church, from church.Status) error {
	st, done := s.view(ctx)
	defer done()

	stored, ok := st.churches[c.ID]
	if !ok || stored.Status != from {
		return church.ErrInvalidState
	}
	if c.SetupTokenHash != nil {
		for id, other := range st.churches {
			if id != c.ID && other.SetupTokenHash != nil && *other.SetupTokenHash == *c.SetupTokenHash {
				return database.Wrap("update church status", errDuplicate)
			}
		}
	}

	stored.Status = c.Status
	stored.StatusReason = c.StatusReason
	stored.SuspendedFrom = c.SuspendedFrom
	stored.ReviewedBy = c.ReviewedBy
	stored.ReviewedAt = c.ReviewedAt
	stored.SetupTokenHash = c.SetupTokenHash
	stored.SetupTokenExpiresAt = c.SetupTokenExpiresAt
	stored.UpdatedAt = now()
	st.churches[c.ID] = stored
	return nil
}

func (s *Store) ClaimSetupToken(ctx context.Context, tokenHash string, at time.Time) (*church.Church, error) {
	st, done := s.view(ctx)
	defer done()

	for id, c := range st.churches {
		if c.SetupTokenHash == nil || *c.SetupTokenHash != tokenHash {
			continue
		}
		if c.SetupTokenExpiresAt == nil || at.After(*c.SetupTokenExpiresAt) {
			return nil, church.ErrInvalidOrExpiredToken
		}

		c.SetupTokenHash = nil
		c.SetupTokenExpiresAt = nil
		c.UpdatedAt = now()
		st.churches[id] = c
		return &c, nil
	}
	return nil, church.ErrInvalidOrExpiredToken
}

func (s *Store) LinkAdminUser(ctx context.Context, churchID, userID uuid.UUID) error {
	st, done := s.view(ctx)
	defer done()

	c, ok := st.churches[churchID]
	if !ok {
		return church.ErrNotFound
	}
	c.AdminUserID = &userID
	c.UpdatedAt = now()
	st.churches[churchID] = c
	return nil
}
