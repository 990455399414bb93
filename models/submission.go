package models

import (
	// External Packages
	"github.com/shopspring/decimal"
)

const (
	OutcomePending   = "pending"
	OutcomeDuplicate = "duplicate"
)

// SubmitRequest is the inbound payload of POST /transactions/send and of
// records on the Kafka intake topic. Amount is a pointer so a missing field
// can be told apart from zero.
type SubmitRequest struct {
	ClientID    ClientID         `json:"id"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
	Timestamp   string           `json:"timestamp"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

type SubmitResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id"`
}
