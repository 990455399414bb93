package models

import (
	// Go Internal Packages
	"bytes"
	"encoding/json"
	"time"

	// External Packages
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransitionTo reports whether a stored record in status s may be moved to
// next. A completed record never moves back to an earlier state.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusCompleted {
		return next == StatusCompleted
	}
	return true
}

// ClientID is the client-supplied transaction identifier. It decodes from a
// JSON string or number.
type ClientID string

func (c *ClientID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ClientID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ClientID(n.String())
	return nil
}

type Transaction struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Status      Status          `json:"status"`
}

// IdempotencyKey is the composite business key two submissions must share to
// be the same logical transaction.
type IdempotencyKey struct {
	ClientID  string
	Timestamp time.Time
	Amount    decimal.Decimal
}

func (t *Transaction) Key() IdempotencyKey {
	return IdempotencyKey{ClientID: t.ClientID, Timestamp: t.Timestamp, Amount: t.Amount}
}

// Matches compares amounts numerically so 10 and 10.00 are the same key.
func (k IdempotencyKey) Matches(t *Transaction) bool {
	return t.ClientID == k.ClientID && t.Timestamp.Equal(k.Timestamp) && t.Amount.Equal(k.Amount)
}

type MongoTransaction struct {
	ID          string               `bson:"_id"`
	ClientID    string               `bson:"client_id"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Currency    string               `bson:"currency"`
	Description string               `bson:"description"`
	Timestamp   time.Time            `bson:"timestamp"`
	Metadata    map[string]any       `bson:"metadata,omitempty"`
	Status      Status               `bson:"status"`
}

func (t *Transaction) Transform() (MongoTransaction, error) {
	amount, err := primitive.ParseDecimal128(t.Amount.String())
	if err != nil {
		return MongoTransaction{}, err
	}
	return MongoTransaction{
		ID:          t.ID,
		ClientID:    t.ClientID,
		Amount:      amount,
		Currency:    t.Currency,
		Description: t.Description,
		Timestamp:   t.Timestamp.UTC(),
		Metadata:    t.Metadata,
		Status:      t.Status,
	}, nil
}

func (m *MongoTransaction) Transaction() (Transaction, error) {
	amount, err := decimal.NewFromString(m.Amount.String())
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:          m.ID,
		ClientID:    m.ClientID,
		Amount:      amount,
		Currency:    m.Currency,
		Description: m.Description,
		Timestamp:   m.Timestamp.UTC(),
		Metadata:    m.Metadata,
		Status:      m.Status,
	}, nil
}
