package intake_test

import (
	// Go Internal Packages
	"context"
	"fmt"
	"testing"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
	queue "tx-intake/queue"
	memory "tx-intake/repositories/memory"
	dedup "tx-intake/services/dedup"
	intake "tx-intake/services/intake"

	// External Packages
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validRequest() models.SubmitRequest {
	return models.SubmitRequest{
		ClientID:    "C1",
		Amount:      amount("10.00"),
		Currency:    "USD",
		Description: "x",
		Timestamp:   "2024-01-01T00:00:00Z",
	}
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, models.Transaction, ...queue.Option) (*models.Job, error) {
	return nil, fmt.Errorf("redis: connection refused")
}

func newService(t *testing.T) (*intake.Service, *memory.TxRepository, *queue.MemoryQueue) {
	t.Helper()
	repo := memory.NewTxRepository()
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { q.Close() })
	return intake.NewService(zap.NewNop(), dedup.NewDetector(repo), q), repo, q
}

func TestSubmitQueuesNewTransaction(t *testing.T) {
	ctx := context.Background()
	svc, repo, q := newService(t)

	res, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePending, res.Status)
	assert.Len(t, res.ID, 36)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Waiting)
	assert.Empty(t, repo.Snapshot(), "submission alone must not create a row")

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ID, d.Job.ID)
	assert.Equal(t, 5, d.Job.MaxAttempts)
	assert.Equal(t, int64(5000), d.Job.BackoffMS)
	assert.Equal(t, "C1", d.Job.Transaction.ClientID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d.Job.Transaction.Timestamp)
}

func TestSubmitReturnsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, repo, q := newService(t)

	tx := models.Transaction{
		ID:        "existing",
		ClientID:  "C1",
		Amount:    decimal.NewFromInt(10),
		Currency:  "USD",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.UpsertCompleted(ctx, &tx))

	res, err := svc.Submit(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.SubmitResult{Status: "duplicate", Message: "Transaction already exists", ID: "existing"}, res)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Waiting)
}

func TestSubmitValidation(t *testing.T) {
	cases := map[string]func(r *models.SubmitRequest){
		"missing id":          func(r *models.SubmitRequest) { r.ClientID = "" },
		"missing amount":      func(r *models.SubmitRequest) { r.Amount = nil },
		"zero amount":         func(r *models.SubmitRequest) { r.Amount = amount("0") },
		"negative amount":     func(r *models.SubmitRequest) { r.Amount = amount("-4.20") },
		"missing currency":    func(r *models.SubmitRequest) { r.Currency = " " },
		"missing description": func(r *models.SubmitRequest) { r.Description = "" },
		"missing timestamp":   func(r *models.SubmitRequest) { r.Timestamp = "" },
		"bad timestamp":       func(r *models.SubmitRequest) { r.Timestamp = "yesterday" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _, q := newService(t)
			req := validRequest()
			mutate(&req)

			_, err := svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.Invalid))

			counts, err := q.Counts(context.Background())
			require.NoError(t, err)
			assert.Zero(t, counts.Waiting)
		})
	}
}

func TestSubmitSurfacesQueueError(t *testing.T) {
	repo := memory.NewTxRepository()
	svc := intake.NewService(zap.NewNop(), dedup.NewDetector(repo), failingQueue{})

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Queue))
	assert.Empty(t, repo.Snapshot())
}

func TestSubmitPassesQueueOptions(t *testing.T) {
	repo := memory.NewTxRepository()
	q := queue.NewMemoryQueue()
	defer q.Close()
	svc := intake.NewService(zap.NewNop(), dedup.NewDetector(repo), q, queue.WithMaxAttempts(2), queue.WithBackoff(time.Second))
	svc.NewID = func() string { return "fixed-id" }

	res, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.ID)

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Job.MaxAttempts)
	assert.Equal(t, int64(1000), d.Job.BackoffMS)
}
