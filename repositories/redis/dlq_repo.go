package redis

import (
	// Go Internal Packages
	"context"
	"encoding/json"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeadLetterQueue keeps dead-lettered jobs in a redis list, oldest first.
type DeadLetterQueue struct {
	client   *redis.Client
	logger   *zap.Logger
	listName string
}

func NewDeadLetterQueue(client *redis.Client, logger *zap.Logger, listName string) *DeadLetterQueue {
	if listName == "" {
		listName = "failed-transactions"
	}
	return &DeadLetterQueue{client: client, logger: logger, listName: listName}
}

// Send appends a dead-lettered job to the list
func (r *DeadLetterQueue) Send(ctx context.Context, dl models.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return errors.QueueErr("marshal dead letter", err)
	}
	if err := r.client.RPush(ctx, r.listName, data).Err(); err != nil {
		r.logger.Error("failed to store dead letter", zap.String("job_id", dl.Job.ID), zap.Error(err))
		return errors.QueueErr("dead-letter", err)
	}
	return nil
}

// List returns up to limit dead letters, oldest first; limit <= 0 returns all.
func (r *DeadLetterQueue) List(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := r.client.LRange(ctx, r.listName, 0, stop).Result()
	if err != nil {
		return nil, errors.QueueErr("list dead letters", err)
	}

	out := make([]models.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl models.DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			r.logger.Warn("skipping malformed dead letter", zap.Error(err))
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

func (r *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.listName).Result()
	if err != nil {
		return 0, errors.QueueErr("count dead letters", err)
	}
	return n, nil
}
