package processors

import (
	// Go Internal Packages
	"context"
	"sync/atomic"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	queue "tx-intake/queue"

	// External Packages
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker runs Concurrency consumers against one queue. Each consumer owns the
// delivery it dequeued until it has been settled.
type Worker struct {
	Queue       queue.Queue
	Processor   *TxProcessor
	Concurrency int
	Logger      *zap.Logger
	ErrBackoff  time.Duration

	settled   atomic.Int64
	unsettled atomic.Int64
}

func NewWorker(q queue.Queue, processor *TxProcessor, concurrency int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{Queue: q, Processor: processor, Concurrency: concurrency, Logger: logger, ErrBackoff: time.Second}
}

// Run blocks until ctx is done or the queue is closed. An attempt already in
// progress when ctx is cancelled still runs to its terminal signal.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return w.consume(ctx, id)
		})
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) error {
	logger := w.Logger.With(zap.Int("worker", id))
	logger.Info("worker started")
	defer logger.Info("worker stopped")

	for {
		d, err := w.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.ErrBackoff):
			}
			continue
		}

		ev, err := w.Processor.Handle(context.WithoutCancel(ctx), d)
		if err != nil {
			// the queue re-delivers it once the delivery is reclaimed
			w.unsettled.Add(1)
			logger.Warn("delivery left unsettled", zap.String("id", d.Job.ID), zap.String("receipt", d.Receipt), zap.Error(err))
			continue
		}
		w.settled.Add(1)
		logger.Debug("delivery settled", zap.String("id", ev.JobID), zap.String("event", string(ev.Type)), zap.Int("attempt", ev.Attempts))
	}
}

// Settled returns how many deliveries were acked or failed, and how many could
// not be settled because the queue rejected the terminal signal.
func (w *Worker) Settled() (settled, unsettled int64) {
	return w.settled.Load(), w.unsettled.Load()
}
