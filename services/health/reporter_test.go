package health_test

import (
	// Go Internal Packages
	"context"
	"fmt"
	"testing"
	"time"

	// Local Packages
	models "tx-intake/models"
	health "tx-intake/services/health"

	// External Packages
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounts struct {
	counts models.QueueCounts
	err    error
}

func (s staticCounts) Counts(context.Context) (models.QueueCounts, error) {
	return s.counts, s.err
}

func TestReportCombinesCountsAndEvents(t *testing.T) {
	counts := models.QueueCounts{Waiting: 3, Active: 1, Completed: 7, Failed: 1, Delayed: 2}
	r := health.NewReporter(staticCounts{counts: counts})
	ctx := context.Background()

	deadAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, ev := range []models.JobEvent{
		{Type: models.EventCompleted},
		{Type: models.EventCompleted},
		{Type: models.EventRetrying},
		{Type: models.EventDeadLettered, At: deadAt},
	} {
		require.NoError(t, r.Publish(ctx, ev))
	}

	h, err := r.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, counts, h.Queue)
	assert.Equal(t, int64(2), h.Worker.Completed)
	assert.Equal(t, int64(1), h.Worker.Retried)
	assert.Equal(t, int64(1), h.Worker.DeadLettered)
	require.NotNil(t, h.Worker.LastDeadLetter)
	assert.Equal(t, deadAt, *h.Worker.LastDeadLetter)

	_, err = time.Parse(time.RFC3339Nano, h.ServerTime)
	assert.NoError(t, err)
}

func TestReportSurfacesQueueError(t *testing.T) {
	r := health.NewReporter(staticCounts{err: fmt.Errorf("redis down")})
	_, err := r.Report(context.Background())
	assert.Error(t, err)
}
