package memory

import (
	// Go Internal Packages
	"context"
	"sort"
	"sync"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
)

// TxRepository keeps transaction records in process memory. Writes are
// serialized by a single mutex.
type TxRepository struct {
	mu    sync.RWMutex
	rows  map[string]models.Transaction
	order []string
}

func NewTxRepository() *TxRepository {
	return &TxRepository{rows: make(map[string]models.Transaction)}
}

func (r *TxRepository) FindByIdempotencyKey(_ context.Context, key models.IdempotencyKey) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		tx := r.rows[id]
		if key.Matches(&tx) {
			return &tx, nil
		}
	}
	return nil, nil
}

func (r *TxRepository) FindByClientID(_ context.Context, clientID string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if tx := r.rows[id]; tx.ClientID == clientID {
			return &tx, nil
		}
	}
	return nil, errors.NotFoundErr("transaction", clientID)
}

func (r *TxRepository) Get(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.rows[id]
	if !ok {
		return nil, errors.NotFoundErr("transaction", id)
	}
	return &tx, nil
}

func (r *TxRepository) List(_ context.Context) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txs := make([]models.Transaction, 0, len(r.order))
	for _, id := range r.order {
		txs = append(txs, r.rows[id])
	}
	return txs, nil
}

// SetStatus moves the record to status, inserting it if absent.
func (r *TxRepository) SetStatus(_ context.Context, tx *models.Transaction, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[tx.ID]
	if !ok {
		row := *tx
		row.Status = status
		r.insert(row)
		return nil
	}
	if !existing.Status.CanTransitionTo(status) {
		return nil
	}
	existing.Status = status
	r.rows[tx.ID] = existing
	return nil
}

// UpsertCompleted inserts the full record as completed, or only flips the
// status of an existing row with the same id.
func (r *TxRepository) UpsertCompleted(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[tx.ID]
	if !ok {
		row := *tx
		row.Status = models.StatusCompleted
		r.insert(row)
		return nil
	}
	existing.Status = models.StatusCompleted
	r.rows[tx.ID] = existing
	return nil
}

func (r *TxRepository) DeleteAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.rows))
	r.rows = make(map[string]models.Transaction)
	r.order = nil
	return n, nil
}

func (r *TxRepository) Close() error {
	return nil
}

func (r *TxRepository) insert(tx models.Transaction) {
	r.rows[tx.ID] = tx
	r.order = append(r.order, tx.ID)
}

// Snapshot returns the stored rows sorted by id, for assertions in tests.
func (r *TxRepository) Snapshot() []models.Transaction {
	txs, _ := r.List(context.Background())
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs
}
