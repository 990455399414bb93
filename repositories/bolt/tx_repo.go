// Package bolt stores transaction records in an embedded BoltDB file.
//
// Every record is a JSON value keyed by transaction id. Bolt serializes
// read-write transactions, so conflicting writes to the same id are applied
// one after the other.
package bolt

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	bolt "go.etcd.io/bbolt"
)

const bucketName = "transactions"

type TxRepository struct {
	db *bolt.DB
}

// NewTxRepository opens (or creates) the database at path and ensures the
// transactions bucket exists.
func NewTxRepository(path string) (*TxRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.StorageErr("open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.StorageErr("create bucket", err)
	}

	return &TxRepository{db: db}, nil
}

func (r *TxRepository) Close() error {
	return r.db.Close()
}

func (r *TxRepository) FindByIdempotencyKey(_ context.Context, key models.IdempotencyKey) (*models.Transaction, error) {
	var found *models.Transaction
	err := r.scan(func(tx *models.Transaction) bool {
		if key.Matches(tx) {
			found = tx
			return false
		}
		return true
	})
	if err != nil {
		return nil, errors.StorageErr("find by idempotency key", err)
	}
	return found, nil
}

func (r *TxRepository) FindByClientID(_ context.Context, clientID string) (*models.Transaction, error) {
	var found *models.Transaction
	err := r.scan(func(tx *models.Transaction) bool {
		if tx.ClientID == clientID {
			found = tx
			return false
		}
		return true
	})
	if err != nil {
		return nil, errors.StorageErr("find by client id", err)
	}
	if found == nil {
		return nil, errors.NotFoundErr("transaction", clientID)
	}
	return found, nil
}

func (r *TxRepository) Get(_ context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	var missing bool

	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if v == nil {
			missing = true
			return nil
		}
		return json.Unmarshal(v, &t)
	})
	if err != nil {
		return nil, errors.StorageErr("get", err)
	}
	if missing {
		return nil, errors.NotFoundErr("transaction", id)
	}
	return &t, nil
}

func (r *TxRepository) List(_ context.Context) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := r.scan(func(tx *models.Transaction) bool {
		txs = append(txs, *tx)
		return true
	})
	if err != nil {
		return nil, errors.StorageErr("list", err)
	}
	return txs, nil
}

// SetStatus moves the record to status, inserting the full record if absent.
// A completed record is left untouched.
func (r *TxRepository) SetStatus(_ context.Context, t *models.Transaction, status models.Status) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		row := *t
		if v := b.Get([]byte(t.ID)); v != nil {
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if !row.Status.CanTransitionTo(status) {
				return nil
			}
		}
		row.Status = status
		return put(b, &row)
	})
	if err != nil {
		return errors.StorageErr("set status", err)
	}
	return nil
}

// UpsertCompleted inserts t as completed; when the id already exists only the
// stored row's status changes.
func (r *TxRepository) UpsertCompleted(_ context.Context, t *models.Transaction) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		row := *t
		if v := b.Get([]byte(t.ID)); v != nil {
			row = models.Transaction{}
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
		}
		row.Status = models.StatusCompleted
		return put(b, &row)
	})
	if err != nil {
		return errors.StorageErr("upsert completed", err)
	}
	return nil
}

func (r *TxRepository) DeleteAll(_ context.Context) (int64, error) {
	var n int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket([]byte(bucketName)).Stats().KeyN)
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return 0, errors.StorageErr("delete all", err)
	}
	return n, nil
}

// scan walks every record until fn returns false.
func (r *TxRepository) scan(fn func(tx *models.Transaction) bool) error {
	return r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if !fn(&t) {
				return nil
			}
		}
		return nil
	})
}

func put(b *bolt.Bucket, t *models.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put([]byte(t.ID), data)
}
