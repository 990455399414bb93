package kafka_test

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	kafka "tx-intake/kafka"
	models "tx-intake/models"

	// External Packages
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSubmitter struct {
	calls []models.SubmitRequest
	err   func(req models.SubmitRequest) error
}

func (s *recordingSubmitter) Submit(_ context.Context, req models.SubmitRequest) (models.SubmitResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		if err := s.err(req); err != nil {
			return models.SubmitResult{}, err
		}
	}
	return models.SubmitResult{Status: models.OutcomePending, ID: "id"}, nil
}

func record(value string) models.Record {
	return models.Record{Key: []byte("k"), Value: []byte(value), Topic: "transactions"}
}

func TestDecodeRecord(t *testing.T) {
	req, err := kafka.DecodeRecord(record(`{"id":7,"amount":"3.50","currency":"GBP","description":"Coffee shop visit","timestamp":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, models.ClientID("7"), req.ClientID)
	assert.Equal(t, "3.5", req.Amount.String())

	_, err = kafka.DecodeRecord(record(`nope`))
	assert.True(t, errors.IsKind(err, errors.Invalid))
}

func TestProcessRecordsSkipsBadInput(t *testing.T) {
	sub := &recordingSubmitter{err: func(req models.SubmitRequest) error {
		if req.Currency == "" {
			return errors.EmptyParamErr("currency")
		}
		return nil
	}}
	c := &kafka.TxConsumer{Submitter: sub, Logger: zap.NewNop()}

	err := c.ProcessRecords(context.Background(), []models.Record{
		record(`garbage`),
		record(`{"id":"C1","amount":1,"description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
		record(`{"id":"C2","amount":1,"currency":"USD","description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
	})
	require.NoError(t, err)
	assert.Len(t, sub.calls, 2)
}

func TestProcessRecordsRetriesFailedRecord(t *testing.T) {
	failures := 1
	sub := &recordingSubmitter{err: func(models.SubmitRequest) error {
		if failures > 0 {
			failures--
			return errors.QueueErr("enqueue", fmt.Errorf("redis down"))
		}
		return nil
	}}
	c := &kafka.TxConsumer{Submitter: sub, Logger: zap.NewNop(), RetryBackoff: time.Millisecond}

	err := c.ProcessRecords(context.Background(), []models.Record{
		record(`{"id":"C1","amount":1,"currency":"USD","description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
		record(`{"id":"C2","amount":1,"currency":"USD","description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
	})
	require.NoError(t, err)
	require.Len(t, sub.calls, 3)
	assert.Equal(t, models.ClientID("C1"), sub.calls[0].ClientID)
	assert.Equal(t, models.ClientID("C1"), sub.calls[1].ClientID)
	assert.Equal(t, models.ClientID("C2"), sub.calls[2].ClientID)
}

func TestProcessRecordsStopsOnlyWhenCanceled(t *testing.T) {
	sub := &recordingSubmitter{err: func(models.SubmitRequest) error {
		return errors.QueueErr("enqueue", fmt.Errorf("redis down"))
	}}
	c := &kafka.TxConsumer{Submitter: sub, Logger: zap.NewNop(), RetryBackoff: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := c.ProcessRecords(ctx, []models.Record{
		record(`{"id":"C1","amount":1,"currency":"USD","description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
		record(`{"id":"C2","amount":1,"currency":"USD","description":"x","timestamp":"2024-01-01T00:00:00Z"}`),
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.Queue))
	assert.Greater(t, len(sub.calls), 1)
	for _, call := range sub.calls {
		assert.Equal(t, models.ClientID("C1"), call.ClientID)
	}
}

func TestEncodeEvent(t *testing.T) {
	ev := models.JobEvent{Type: models.EventDeadLettered, JobID: "job-1", Attempts: 5, MaxAttempts: 5, Error: "boom", At: time.Unix(0, 0).UTC()}
	rec, err := kafka.EncodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, []byte("job-1"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "dead_lettered", string(rec.Headers[0].Value))

	var back models.JobEvent
	require.NoError(t, json.Unmarshal(rec.Value, &back))
	assert.Equal(t, ev, back)
}
