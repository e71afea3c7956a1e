// Package memory is a mutex-guarded, in-process implementation of every
// repository in the service. It backs STORAGE_DRIVER=memory and the service
// tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/payout"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
)

var (
	_ database.Transactor = (*Store)(nil)
	_ user.Repository     = (*Store)(nil)
	_ wallet.Repository   = (*Store)(nil)
	_ church.Repository   = (*Store)(nil)
	_ payout.Repository   = (*Store)(nil)
)

var errDuplicate = errors.New("duplicate key value violates unique constraint")

// Store holds one committed state. A unit of work runs against a copy of it
// while holding mu and swaps the copy in on success, so units are serialised
// and a failed unit leaves nothing behind.
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	users        map[uuid.UUID]user.User
	wallets      map[uuid.UUID]wallet.Wallet
	transactions []wallet.Transaction
	churches     map[uuid.UUID]church.Church
	churchOrder  []uuid.UUID
	payouts      map[uuid.UUID]payout.Payout
	payoutOrder  []uuid.UUID
}

type txKey struct{}

type unit struct {
	store *Store
	data  *state
}

func New() *Store {
	return &Store{data: &state{
		users:    make(map[uuid.UUID]user.User),
		wallets:  make(map[uuid.UUID]wallet.Wallet),
		churches: make(map[uuid.UUID]church.Church),
		payouts:  make(map[uuid.UUID]payout.Payout),
	}}
}

func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if u, ok := ctx.Value(txKey{}).(*unit); ok && u.store == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, &unit{store: s, data: work})); err != nil {
		return err
	}
	s.data = work
	return nil
}

// view returns the state a repository call should work on. Outside a unit of
// work the committed state is used directly under the lock.
func (s *Store) view(ctx context.Context) (*state, func()) {
	if u, ok := ctx.Value(txKey{}).(*unit); ok && u.store == s {
		return u.data, func() {}
	}
	s.mu.Lock()
	return s.data, s.mu.Unlock
}

func (st *state) clone() *state {
	c := &state{
		users:        make(map[uuid.UUID]user.User, len(st.users)),
		wallets:      make(map[uuid.UUID]wallet.Wallet, len(st.wallets)),
		transactions: slices.Clone(st.transactions),
		churches:     make(map[uuid.UUID]church.Church, len(st.churches)),
		churchOrder:  slices.Clone(st.churchOrder),
		payouts:      make(map[uuid.UUID]payout.Payout, len(st.payouts)),
		payoutOrder:  slices.Clone(st.payoutOrder),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.churches {
		c.churches[k] = v
	}
	for k, v := range st.payouts {
		c.payouts[k] = v
	}
	return c
}

func now() time.Time {
	return time.Now().UTC()
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
