package queue

import (
	// Go Internal Packages
	"context"
	"strconv"
	"sync"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
)

// MemoryQueue is an in-process Queue. Jobs do not survive a restart.
type MemoryQueue struct {
	mu        sync.Mutex
	defaults  []Option
	waiting   []models.Job
	active    map[string]models.Job
	delayed   map[string]*time.Timer
	dead      []models.DeadLetter
	completed int64
	seq       uint64
	wake      chan struct{}
	closed    bool
}

// NewMemoryQueue returns an empty queue; defaults apply to every Enqueue
// before the per-call options.
func NewMemoryQueue(defaults ...Option) *MemoryQueue {
	return &MemoryQueue{
		defaults: defaults,
		active:   make(map[string]models.Job),
		delayed:  make(map[string]*time.Timer),
		wake:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, tx models.Transaction, opts ...Option) (*models.Job, error) {
	job := NewJob(tx, append(append([]Option{}, q.defaults...), opts...)...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errors.QueueErr("enqueue", ErrClosed)
	}
	q.push(job)
	return &job, nil
}

// Dequeue blocks until a job is waiting, ctx is done or the queue is closed.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.waiting) > 0 {
			job := q.waiting[0]
			q.waiting[0] = models.Job{}
			q.waiting = q.waiting[1:]
			job.Attempts++

			q.seq++
			receipt := strconv.FormatUint(q.seq, 10)
			q.active[receipt] = job
			q.mu.Unlock()
			return &Delivery{Job: job, Receipt: receipt}, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[d.Receipt]; !ok {
		return errors.QueueErr("ack", ErrUnknownDelivery)
	}
	delete(q.active, d.Receipt)
	q.completed++
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, d *Delivery, cause error) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.active[d.Receipt]
	if !ok {
		return 0, errors.QueueErr("fail", ErrUnknownDelivery)
	}
	delete(q.active, d.Receipt)

	outcome := Decide(&job, cause)
	if outcome == DeadLettered {
		q.dead = append(q.dead, models.DeadLetter{Job: job, Error: job.LastError, FailedAt: time.Now().UTC()})
		return outcome, nil
	}

	receipt := d.Receipt
	q.delayed[receipt] = time.AfterFunc(job.Backoff(), func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		delete(q.delayed, receipt)
		q.push(job)
	})
	return outcome, nil
}

func (q *MemoryQueue) Counts(_ context.Context) (models.QueueCounts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return models.QueueCounts{
		Waiting:   int64(len(q.waiting)),
		Active:    int64(len(q.active)),
		Completed: q.completed,
		Failed:    int64(len(q.dead)),
		Delayed:   int64(len(q.delayed)),
	}, nil
}

// DeadLetters returns up to limit dead-lettered jobs, oldest first. A
// non-positive limit returns all of them.
func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]models.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.dead)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.DeadLetter, n)
	copy(out, q.dead[:n])
	return out, nil
}

// Close stops pending retry timers and wakes blocked consumers.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for _, t := range q.delayed {
		t.Stop()
	}
	close(q.wake)
	return nil
}

// push must be called with q.mu held.
func (q *MemoryQueue) push(job models.Job) {
	q.waiting = append(q.waiting, job)
	close(q.wake)
	q.wake = make(chan struct{})
}
