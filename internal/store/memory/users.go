package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/user"
)

func (s *Store) FindByGoogleID(ctx context.Context, googleID string) (*user.User, error) {
	st, done := s.view(ctx)
	defer done()

	for _, u := range st.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return cloneUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	st, done := s.view(ctx)
	defer done()

	email = user.NormalizeEmail(email)
	for _, u := range st.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	st, done := s.view(ctx)
	defer done()

	u.Email = user.NormalizeEmail(u.Email)
	for _, existing := range st.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
		if u.GoogleID != nil && existing.GoogleID != nil && *existing.GoogleID == *u.GoogleID {
			return user.ErrEmailTaken
		}
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	st.users[u.ID] = *cloneUser(*u)
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	st, done := s.view(ctx)
	defer done()

	u, ok := st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return cloneUser(u), nil
}

func cloneUser(u user.User) *user.User {
	u.Roles = slices.Clone(u.Roles)
	return &u
}
