package wallet_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/events"
)

type fakeQueue struct {
	mu       sync.Mutex
	events   chan []byte
	dead     [][]byte
	requeued [][]byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{events: make(chan []byte, 10)}
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case data := <-q.events:
		return data, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *fakeQueue) PushToDLQ(_ context.Context, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, data)
	return nil
}

func (q *fakeQueue) Requeue(_ context.Context, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, data)
	return nil
}

func (q *fakeQueue) deadLettered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}

// flakyRepo fails reference lookups with a store error a fixed number of times.
type flakyRepo struct {
	wallet.Repository
	failures int
	calls    int
}

func (f *flakyRepo) GetTransactionByReference(ctx context.Context, ref string) (*wallet.Transaction, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, database.Wrap("get transaction", errors.New("too many connections"))
	}
	return f.Repository.GetTransactionByReference(ctx, ref)
}

func encode(t *testing.T, event events.TopUpEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func newWorker(svc *wallet.Service, q wallet.Queue) *wallet.TopUpWorker {
	w := wallet.NewTopUpWorker(svc, q)
	w.Backoff = time.Millisecond
	w.PollTimeout = 10 * time.Millisecond
	return w
}

func TestWorkerCompletesTopUp(t *testing.T) {
	_, svc := newLedger(t)
	u := fund(t, svc, 0)
	entry, err := svc.InitiateTopUp(context.Background(), u, 900)
	require.NoError(t, err)

	q := newFakeQueue()
	q.events <- encode(t, events.TopUpEvent{Event: events.EventTopUpSucceeded, Reference: entry.Reference, Amount: 900})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	newWorker(svc, q).Start(ctx)

	assert.Eventually(t, func() bool {
		w, err := svc.GetWallet(context.Background(), u)
		return err == nil && w.AvailableBalance == 900
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.deadLettered())
}

func TestWorkerFailsTopUp(t *testing.T) {
	_, svc := newLedger(t)
	u := fund(t, svc, 0)
	entry, err := svc.InitiateTopUp(context.Background(), u, 900)
	require.NoError(t, err)

	q := newFakeQueue()
	newWorker(svc, q).Process(context.Background(), encode(t, events.TopUpEvent{
		Event: events.EventTopUpFailed, Reference: entry.Reference, Reason: "insufficient funds on card",
	}))

	w, err := svc.GetWallet(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.PendingBalance)
	assert.Equal(t, int64(0), w.AvailableBalance)
	assert.Equal(t, 0, q.deadLettered())
}

func TestWorkerDeadLetters(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T, ref string) []byte
	}{
		{"malformed payload", func(t *testing.T, _ string) []byte { return []byte("{not json") }},
		{"unknown reference", func(t *testing.T, _ string) []byte {
			return encode(t, events.TopUpEvent{Event: events.EventTopUpSucceeded, Reference: "top-unknown", Amount: 1})
		}},
		{"amount mismatch", func(t *testing.T, ref string) []byte {
			return encode(t, events.TopUpEvent{Event: events.EventTopUpSucceeded, Reference: ref, Amount: 1})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newLedger(t)
			u := fund(t, svc, 0)
			entry, err := svc.InitiateTopUp(context.Background(), u, 500)
			require.NoError(t, err)

			q := newFakeQueue()
			newWorker(svc, q).Process(context.Background(), tt.data(t, entry.Reference))

			assert.Equal(t, 1, q.deadLettered())
			w, err := svc.GetWallet(context.Background(), u)
			require.NoError(t, err)
			assert.Equal(t, int64(0), w.AvailableBalance)
		})
	}
}

func TestWorkerRetriesStoreErrors(t *testing.T) {
	store, svc := newLedger(t)
	u := fund(t, svc, 0)
	entry, err := svc.InitiateTopUp(context.Background(), u, 300)
	require.NoError(t, err)
	data := encode(t, events.TopUpEvent{Event: events.EventTopUpSucceeded, Reference: entry.Reference, Amount: 300})

	t.Run("recovers within retry budget", func(t *testing.T) {
		flaky := &flakyRepo{Repository: store, failures: 2}
		q := newFakeQueue()
		newWorker(wallet.NewService(flaky, store, "ZAR"), q).Process(context.Background(), data)

		assert.Equal(t, 3, flaky.calls)
		assert.Equal(t, 0, q.deadLettered())
		w, err := svc.GetWallet(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, int64(300), w.AvailableBalance)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		flaky := &flakyRepo{Repository: store, failures: 10}
		q := newFakeQueue()
		newWorker(wallet.NewService(flaky, store, "ZAR"), q).Process(context.Background(), data)

		assert.Equal(t, 3, flaky.calls)
		assert.Equal(t, 1, q.deadLettered())
	})
}

func TestWorkerShutdown(t *testing.T) {
	store, svc := newLedger(t)
	u := fund(t, svc, 0)
	entry, err := svc.InitiateTopUp(context.Background(), u, 400)
	require.NoError(t, err)
	data := encode(t, events.TopUpEvent{Event: events.EventTopUpSucceeded, Reference: entry.Reference, Amount: 400})

	stopped, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("event waiting on a retry is requeued", func(t *testing.T) {
		flaky := &flakyRepo{Repository: store, failures: 10}
		q := newFakeQueue()
		newWorker(wallet.NewService(flaky, store, "ZAR"), q).Process(stopped, data)

		assert.Equal(t, 1, flaky.calls)
		assert.Equal(t, 0, q.deadLettered())
		require.Len(t, q.requeued, 1)
		assert.Equal(t, data, q.requeued[0])
	})

	t.Run("in-flight settlement completes", func(t *testing.T) {
		q := newFakeQueue()
		newWorker(svc, q).Process(stopped, data)

		assert.Equal(t, 0, q.deadLettered())
		assert.Empty(t, q.requeued)
		w, err := svc.GetWallet(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, int64(400), w.AvailableBalance)
	})
}
