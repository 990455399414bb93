// Package repotest holds the behavioural contract every record store adapter
// must satisfy. Adapters call Run from their own tests.
package repotest

import (
	// Go Internal Packages
	"context"
	"testing"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Repository interface {
	FindByIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.Transaction, error)
	FindByClientID(ctx context.Context, clientID string) (*models.Transaction, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	List(ctx context.Context) ([]models.Transaction, error)
	SetStatus(ctx context.Context, tx *models.Transaction, status models.Status) error
	UpsertCompleted(ctx context.Context, tx *models.Transaction) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Sample returns a transaction for client C1 at 2024-01-01 for 10.00 USD.
func Sample(id string) models.Transaction {
	return models.Transaction{
		ID:          id,
		ClientID:    "C1",
		Amount:      decimal.RequireFromString("10.00"),
		Currency:    "USD",
		Description: "x",
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata:    map[string]any{"vendor": "FreshMart"},
		Status:      models.StatusPending,
	}
}

// Run executes the contract against a fresh repository per subtest.
func Run(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("EmptyList", func(t *testing.T) {
		repo := newRepo(t)
		txs, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("SetStatusCreatesRow", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-1")

		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusProcessing))

		got, err := repo.Get(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
		assert.Equal(t, "C1", got.ClientID)
		assert.True(t, got.Amount.Equal(tx.Amount))
	})

	t.Run("UpsertCompletedIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-2")

		require.NoError(t, repo.UpsertCompleted(ctx, &tx))
		require.NoError(t, repo.UpsertCompleted(ctx, &tx))

		txs, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, models.StatusCompleted, txs[0].Status)
	})

	t.Run("UpsertCompletedKeepsExistingFields", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-3")
		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusProcessing))

		conflicting := tx
		conflicting.Description = "changed"
		require.NoError(t, repo.UpsertCompleted(ctx, &conflicting))

		got, err := repo.Get(ctx, "id-3")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, "x", got.Description)
	})

	t.Run("CompletedNeverMovesBack", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-4")
		require.NoError(t, repo.UpsertCompleted(ctx, &tx))

		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusProcessing))
		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusFailed))

		got, err := repo.Get(ctx, "id-4")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
	})

	t.Run("FailedCanBeRetried", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-5")
		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusFailed))
		require.NoError(t, repo.SetStatus(ctx, &tx, models.StatusProcessing))

		got, err := repo.Get(ctx, "id-5")
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
	})

	t.Run("FindByIdempotencyKey", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		tx := Sample("id-6")

		found, err := repo.FindByIdempotencyKey(ctx, tx.Key())
		require.NoError(t, err)
		assert.Nil(t, found)

		require.NoError(t, repo.UpsertCompleted(ctx, &tx))

		key := tx.Key()
		key.Amount = decimal.NewFromInt(10)
		found, err = repo.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "id-6", found.ID)

		key.Timestamp = key.Timestamp.Add(time.Second)
		found, err = repo.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("FindByClientID", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		_, err := repo.FindByClientID(ctx, "C1")
		assert.True(t, errors.IsKind(err, errors.NotFound))

		tx := Sample("id-7")
		require.NoError(t, repo.UpsertCompleted(ctx, &tx))
		got, err := repo.FindByClientID(ctx, "C1")
		require.NoError(t, err)
		assert.Equal(t, "id-7", got.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := newRepo(t).Get(context.Background(), "missing")
		assert.True(t, errors.IsKind(err, errors.NotFound))
	})

	t.Run("DeleteAll", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		for _, id := range []string{"a", "b", "c"} {
			tx := Sample(id)
			require.NoError(t, repo.UpsertCompleted(ctx, &tx))
		}

		n, err := repo.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = repo.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		txs, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}
