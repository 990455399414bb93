package health

import (
	// Go Internal Packages
	"context"
	"sync"
	"time"

	// Local Packages
	models "tx-intake/models"
)

type CountsSource interface {
	Counts(ctx context.Context) (models.QueueCounts, error)
}

// Reporter combines queue depth with the job events this process has seen.
// It is registered as an event publisher on the transaction processor.
type Reporter struct {
	Queue CountsSource

	mu    sync.Mutex
	stats models.WorkerStats
}

func NewReporter(q CountsSource) *Reporter {
	return &Reporter{Queue: q}
}

func (r *Reporter) Publish(_ context.Context, ev models.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case models.EventCompleted:
		r.stats.Completed++
	case models.EventRetrying:
		r.stats.Retried++
	case models.EventDeadLettered:
		r.stats.DeadLettered++
		at := ev.At
		r.stats.LastDeadLetter = &at
	}
	return nil
}

func (r *Reporter) Stats() models.WorkerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Reporter) Report(ctx context.Context) (models.Health, error) {
	counts, err := r.Queue.Counts(ctx)
	if err != nil {
		return models.Health{}, err
	}
	return models.Health{
		Status:     "ok",
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
		Queue:      counts,
		Worker:     r.Stats(),
	}, nil
}
