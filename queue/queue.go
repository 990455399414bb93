// Package queue defines the at-least-once job queue used between the intake
// API and the transaction workers.
//
// A job is owned by exactly one consumer between Dequeue and the terminal
// signal for that delivery. Exactly one of Ack or Fail must be called per
// delivery. Fail applies the fixed-delay retry policy: the job is delivered
// again after its backoff until it has been delivered MaxAttempts times, after
// which it is dead-lettered and never retried.
package queue

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 5 * time.Second
)

var (
	ErrClosed          = errors.New("queue closed")
	ErrUnknownDelivery = errors.New("unknown or already settled delivery")
)

// Outcome is what Fail did with the job.
type Outcome int

const (
	Retrying Outcome = iota + 1
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Retrying:
		return "retrying"
	case DeadLettered:
		return "dead_lettered"
	}
	return "unknown"
}

// Delivery is one hand-out of a job to a consumer. Receipt identifies the
// delivery to Ack and Fail.
type Delivery struct {
	Job     models.Job
	Receipt string
}

type Queue interface {
	Enqueue(ctx context.Context, tx models.Transaction, opts ...Option) (*models.Job, error)
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Fail(ctx context.Context, d *Delivery, cause error) (Outcome, error)
	Counts(ctx context.Context) (models.QueueCounts, error)
	DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
	Close() error
}

type Options struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Option func(*Options)

func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithBackoff sets the fixed delay applied after every failed attempt.
func WithBackoff(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Backoff = d
		}
	}
}

func NewOptions(opts ...Option) Options {
	o := Options{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewJob wraps tx in a job. The job id is the transaction id.
func NewJob(tx models.Transaction, opts ...Option) models.Job {
	o := NewOptions(opts...)
	tx.Status = models.StatusPending
	return models.Job{
		ID:          tx.ID,
		Transaction: tx,
		MaxAttempts: o.MaxAttempts,
		BackoffMS:   o.Backoff.Milliseconds(),
		CreatedAt:   time.Now().Unix(),
	}
}

// Decide records cause on the job and picks retry or dead-letter.
func Decide(job *models.Job, cause error) Outcome {
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Exhausted() {
		return DeadLettered
	}
	return Retrying
}
