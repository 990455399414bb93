package processors_test

import (
	// Go Internal Packages
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
	queue "tx-intake/queue"
	memory "tx-intake/repositories/memory"
	processors "tx-intake/services/processors"

	// External Packages
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakyRepo wraps the memory store and fails the first N calls of each write.
type flakyRepo struct {
	*memory.TxRepository

	mu               sync.Mutex
	failProcessing   int
	failUpsert       int
	processingWrites int
	statusWrites     []models.Status
}

func (r *flakyRepo) SetStatus(ctx context.Context, tx *models.Transaction, status models.Status) error {
	r.mu.Lock()
	r.statusWrites = append(r.statusWrites, status)
	if status == models.StatusProcessing {
		r.processingWrites++
		if r.failProcessing != 0 {
			r.failProcessing--
			r.mu.Unlock()
			return fmt.Errorf("connection reset")
		}
	}
	r.mu.Unlock()
	return r.TxRepository.SetStatus(ctx, tx, status)
}

func (r *flakyRepo) UpsertCompleted(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	if r.failUpsert != 0 {
		r.failUpsert--
		r.mu.Unlock()
		return fmt.Errorf("deadlock detected")
	}
	r.mu.Unlock()
	return r.TxRepository.UpsertCompleted(ctx, tx)
}

func (r *flakyRepo) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processingWrites
}

type chanPublisher chan models.JobEvent

func (c chanPublisher) Publish(_ context.Context, ev models.JobEvent) error {
	c <- ev
	return nil
}

func sampleTx() models.Transaction {
	return models.Transaction{
		ClientID:    "C1",
		Amount:      decimal.RequireFromString("10.00"),
		Currency:    "USD",
		Description: "x",
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	repo   *flakyRepo
	queue  *queue.MemoryQueue
	events chanPublisher
	proc   *processors.TxProcessor
}

func newHarness(t *testing.T, failProcessing, failUpsert int) *harness {
	t.Helper()
	h := &harness{
		repo:   &flakyRepo{TxRepository: memory.NewTxRepository(), failProcessing: failProcessing, failUpsert: failUpsert},
		queue:  queue.NewMemoryQueue(queue.WithBackoff(5 * time.Millisecond)),
		events: make(chanPublisher, 16),
	}
	h.proc = processors.NewTxProcessor(zap.NewNop(), h.repo, h.queue, h.events)
	t.Cleanup(func() { h.queue.Close() })
	return h
}

// runUntil starts a worker pool and returns the first event of the wanted type.
func (h *harness) runUntil(t *testing.T, want models.EventType) models.JobEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := processors.NewWorker(h.queue, h.proc, 2, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == want {
				cancel()
				require.NoError(t, <-done)
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func (h *harness) enqueue(t *testing.T, id string, opts ...queue.Option) {
	t.Helper()
	tx := sampleTx()
	tx.ID = id
	_, err := h.queue.Enqueue(context.Background(), tx, opts...)
	require.NoError(t, err)
}

func TestHandleCompletes(t *testing.T) {
	h := newHarness(t, 0, 0)
	h.enqueue(t, "id-1")

	d, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	ev, err := h.proc.Handle(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, ev.Type)
	assert.Equal(t, 1, ev.Attempts)

	rows := h.repo.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "id-1", rows[0].ID)
	assert.Equal(t, models.StatusCompleted, rows[0].Status)
	assert.Equal(t, []models.Status{models.StatusProcessing}, h.repo.statusWrites)

	counts, err := h.queue.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.QueueCounts{Completed: 1}, counts)
	assert.Len(t, h.events, 1)
}

func TestRetryBoundDeadLetters(t *testing.T) {
	h := newHarness(t, 0, -1)
	h.enqueue(t, "id-2")

	ev := h.runUntil(t, models.EventDeadLettered)
	assert.Equal(t, 5, ev.Attempts)
	assert.Equal(t, 5, h.repo.attempts())
	assert.Contains(t, ev.Error, "deadlock detected")

	got, err := h.repo.Get(context.Background(), "id-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	counts, err := h.queue.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.QueueCounts{Failed: 1}, counts)

	dead, err := h.queue.DeadLetters(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 5, dead[0].Job.Attempts)
	assert.Contains(t, dead[0].Error, "deadlock detected")
}

func TestEventualSuccessOnThirdAttempt(t *testing.T) {
	h := newHarness(t, 0, 2)
	h.enqueue(t, "id-3")

	ev := h.runUntil(t, models.EventCompleted)
	assert.Equal(t, 3, ev.Attempts)
	assert.Equal(t, 3, h.repo.attempts())

	got, err := h.repo.Get(context.Background(), "id-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestProcessingWriteFailureTakesFailedPath(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.enqueue(t, "id-4")

	d, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	ev, err := h.proc.Handle(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, models.EventRetrying, ev.Type)
	assert.Contains(t, ev.Error, "store mark processing failed")

	got, err := h.repo.Get(context.Background(), "id-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	ev = h.runUntil(t, models.EventCompleted)
	assert.Equal(t, 2, ev.Attempts)
	got, err = h.repo.Get(context.Background(), "id-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestProcessJobIdempotentUnderRedelivery(t *testing.T) {
	h := newHarness(t, 0, 0)
	job := queue.NewJob(func() models.Transaction { tx := sampleTx(); tx.ID = "id-5"; return tx }())

	require.NoError(t, h.proc.ProcessJob(context.Background(), &job))
	require.NoError(t, h.proc.ProcessJob(context.Background(), &job))

	rows := h.repo.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusCompleted, rows[0].Status)
}

func TestProcessJobReturnsStorageError(t *testing.T) {
	h := newHarness(t, 0, 1)
	job := queue.NewJob(func() models.Transaction { tx := sampleTx(); tx.ID = "id-6"; return tx }())

	err := h.proc.ProcessJob(context.Background(), &job)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Storage))
	assert.Equal(t, []models.Status{models.StatusProcessing, models.StatusFailed}, h.repo.statusWrites)
}

func TestHandleUnknownDeliveryProducesNoEvent(t *testing.T) {
	h := newHarness(t, 0, 0)
	d := &queue.Delivery{Job: queue.NewJob(sampleTx()), Receipt: "never-dequeued"}
	d.Job.ID = "id-7"

	_, err := h.proc.Handle(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Queue))
	assert.Empty(t, h.events)
}

// rejectingQueue refuses the first ack it sees.
type rejectingQueue struct {
	*queue.MemoryQueue

	mu       sync.Mutex
	rejected bool
}

func (q *rejectingQueue) Ack(ctx context.Context, d *queue.Delivery) error {
	q.mu.Lock()
	reject := !q.rejected
	q.rejected = true
	q.mu.Unlock()
	if reject {
		return errors.QueueErr("ack", fmt.Errorf("connection reset"))
	}
	return q.MemoryQueue.Ack(ctx, d)
}

func TestWorkerTracksUnsettledDeliveries(t *testing.T) {
	mem := queue.NewMemoryQueue()
	defer mem.Close()
	q := &rejectingQueue{MemoryQueue: mem}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	proc := processors.NewTxProcessor(logger, memory.NewTxRepository(), q)
	w := processors.NewWorker(q, proc, 1, logger)

	for _, id := range []string{"id-8", "id-9"} {
		tx := sampleTx()
		tx.ID = id
		_, err := q.Enqueue(context.Background(), tx)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		settled, unsettled := w.Settled()
		return settled+unsettled == 2
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	settled, unsettled := w.Settled()
	assert.Equal(t, int64(1), settled)
	assert.Equal(t, int64(1), unsettled)

	warn := logs.FilterMessage("delivery left unsettled").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "id-8", warn[0].ContextMap()["id"])

	ok := logs.FilterMessage("delivery settled").All()
	require.Len(t, ok, 1)
	assert.Equal(t, "id-9", ok[0].ContextMap()["id"])
	assert.Equal(t, "completed", ok[0].ContextMap()["event"])
}
