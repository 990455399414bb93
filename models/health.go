package models

import "time"

type WorkerStats struct {
	Completed      int64      `json:"completed"`
	Retried        int64      `json:"retried"`
	DeadLettered   int64      `json:"dead_lettered"`
	LastDeadLetter *time.Time `json:"last_dead_letter,omitempty"`
}

type Health struct {
	Status     string      `json:"status"`
	ServerTime string      `json:"serverTime"`
	Queue      QueueCounts `json:"queue"`
	Worker     WorkerStats `json:"worker"`
}

// DeadLetterSummary is the operator view of a dead-lettered job; it never
// carries the transaction payload.
type DeadLetterSummary struct {
	JobID    string    `json:"job_id"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (d *DeadLetter) Summary() DeadLetterSummary {
	return DeadLetterSummary{JobID: d.Job.ID, Attempts: d.Job.Attempts, Error: d.Error, FailedAt: d.FailedAt}
}
