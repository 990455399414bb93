package models

import "time"

type Job struct {
	ID          string      `json:"id"`
	Transaction Transaction `json:"transaction"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`
	BackoffMS   int64       `json:"backoff_ms"`
	CreatedAt   int64       `json:"created_at"`
	LastError   string      `json:"last_error,omitempty"`
}

func (j *Job) Backoff() time.Duration {
	return time.Duration(j.BackoffMS) * time.Millisecond
}

// Exhausted reports whether the job has used up every allowed delivery.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

type EventType string

const (
	EventCompleted    EventType = "completed"
	EventRetrying     EventType = "retrying"
	EventDeadLettered EventType = "dead_lettered"
)

// JobEvent is the single terminal signal produced for one job attempt.
type JobEvent struct {
	Type        EventType `json:"type"`
	JobID       string    `json:"job_id"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

type DeadLetter struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}
