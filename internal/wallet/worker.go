package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/events"
	"github.com/zjoart/churpay/pkg/logger"
)

type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	PushToDLQ(ctx context.Context, data []byte) error
	Requeue(ctx context.Context, data []byte) error
}

// TopUpWorker settles pending top-ups from gateway events. Store failures are
// retried with a linear backoff; anything else goes straight to the DLQ. An
// event still waiting on a retry at shutdown goes back on the queue.
type TopUpWorker struct {
	Ledger      *Service
	Queue       Queue
	MaxRetries  int
	Backoff     time.Duration
	PollTimeout time.Duration
}

func NewTopUpWorker(ledger *Service, queue Queue) *TopUpWorker {
	return &TopUpWorker{
		Ledger:      ledger,
		Queue:       queue,
		MaxRetries:  3,
		Backoff:     time.Second,
		PollTimeout: 5 * time.Second,
	}
}

func (w *TopUpWorker) Start(ctx context.Context) {
	logger.Info("Starting top-up worker...")
	go w.Run(ctx)
}

// Run consumes events until ctx is cancelled.
func (w *TopUpWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			logger.Info("Top-up worker stopped")
			return
		}

		data, err := w.Queue.Pop(ctx, w.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("TopUpWorker: failed to read queue", logger.WithError(err))
			w.sleep(ctx, w.Backoff)
			continue
		}
		if data == nil {
			continue
		}

		w.Process(ctx, data)
	}
}

// Process handles one raw event.
func (w *TopUpWorker) Process(ctx context.Context, data []byte) {
	var event events.TopUpEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Error("TopUpWorker: failed to unmarshal event", logger.Fields{"error": err.Error(), "data": string(data)})
		w.deadLetter(ctx, data)
		return
	}

	fields := logger.Fields{"event": event.Event, "reference": event.Reference}
	// a settlement that has started runs to completion even during shutdown
	settleCtx := context.WithoutCancel(ctx)

	for attempt := 1; attempt <= w.MaxRetries; attempt++ {
		var err error
		switch event.Event {
		case events.EventTopUpSucceeded:
			err = w.Ledger.CompleteTopUp(settleCtx, event.Reference, event.Amount)
		case events.EventTopUpFailed:
			err = w.Ledger.FailTopUp(settleCtx, event.Reference, event.Reason)
		default:
			logger.Warn("TopUpWorker: unknown event type", fields)
			metrics.TopUpEvents.WithLabelValues("ignored").Inc()
			return
		}

		if err == nil {
			logger.Info("TopUpWorker: processed event", fields)
			metrics.TopUpEvents.WithLabelValues(event.Event).Inc()
			return
		}

		if !errors.Is(err, database.ErrPersistence) {
			logger.Error("TopUpWorker: event rejected", logger.Merge(fields, logger.WithError(err)))
			w.deadLetter(ctx, data)
			return
		}

		logger.Warn("TopUpWorker: failed to process event, retrying", logger.Merge(fields, logger.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}))
		if attempt < w.MaxRetries && !w.sleep(ctx, time.Duration(attempt)*w.Backoff) {
			w.requeue(settleCtx, data, fields)
			return
		}
	}

	logger.Error("TopUpWorker: retries exhausted, moving to DLQ", fields)
	w.deadLetter(ctx, data)
}

func (w *TopUpWorker) deadLetter(ctx context.Context, data []byte) {
	metrics.TopUpEvents.WithLabelValues("dead_lettered").Inc()
	// the DLQ write must survive shutdown of the consuming context
	if err := w.Queue.PushToDLQ(context.WithoutCancel(ctx), data); err != nil {
		logger.Error("TopUpWorker: failed to push to DLQ", logger.WithError(err))
	}
}

func (w *TopUpWorker) requeue(ctx context.Context, data []byte, fields logger.Fields) {
	logger.Warn("TopUpWorker: shutting down, returning event to queue", fields)
	metrics.TopUpEvents.WithLabelValues("requeued").Inc()
	if err := w.Queue.Requeue(ctx, data); err != nil {
		logger.Error("TopUpWorker: failed to requeue event, moving to DLQ", logger.Merge(fields, logger.WithError(err)))
		w.deadLetter(ctx, data)
	}
}

// sleep waits for d and reports false if ctx ended first.
func (w *TopUpWorker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
