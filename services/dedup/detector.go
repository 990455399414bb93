// Package dedup recognizes submissions that repeat an already stored
// transaction.
//
// Detection reads the record store only and holds no lock across the check
// and the later enqueue. Two submissions with the same key that arrive before
// either job has been processed both miss, and both are stored under
// different ids. Records only become visible once a worker starts processing
// them, which is what opens that window.
package dedup

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
)

type TxRepository interface {
	FindByIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.Transaction, error)
}

type Detector struct {
	TxRepo TxRepository
}

func NewDetector(txRepo TxRepository) *Detector {
	return &Detector{TxRepo: txRepo}
}

// Check returns the id of the stored transaction sharing key, if any.
func (d *Detector) Check(ctx context.Context, key models.IdempotencyKey) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	existing, err := d.TxRepo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return "", false, err
	}
	if existing == nil {
		return "", false, nil
	}
	return existing.ID, true, nil
}

func ValidateKey(key models.IdempotencyKey) error {
	ve := errors.ValidationErrs()
	if key.ClientID == "" {
		ve.Add("id", "cannot be empty")
	}
	if key.Timestamp.IsZero() {
		ve.Add("timestamp", "cannot be empty")
	}
	if !key.Amount.IsPositive() {
		ve.Add("amount", "must be a positive number")
	}
	return ve.Err()
}
