package redis

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
	queue "tx-intake/queue"

	// External Packages
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobQueueConfig struct {
	Stream    string
	Group     string
	Consumer  string
	Block     time.Duration // XREADGROUP block per poll
	ClaimIdle time.Duration // pending deliveries idle this long are re-queued
}

// JobQueue is a queue.Queue on a redis stream read through a consumer group.
// Delayed retries wait in a sorted set scored by due time (unix ms) until
// PromoteDue moves them back onto the stream.
type JobQueue struct {
	client       *redis.Client
	conf         JobQueueConfig
	dlq          *DeadLetterQueue
	logger       *zap.Logger
	defaults     []queue.Option
	retryKey     string
	completedKey string
}

var errAbandoned = errors.New("delivery abandoned by consumer")

// promoteScript moves due retries onto the stream atomically so two
// promoters never both re-add the same job.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, raw in ipairs(due) do
  redis.call('XADD', KEYS[2], '*', 'job', raw)
  redis.call('ZREM', KEYS[1], raw)
end
return #due
`)

func NewJobQueue(ctx context.Context, client *redis.Client, conf JobQueueConfig, dlq *DeadLetterQueue, logger *zap.Logger, defaults ...queue.Option) (*JobQueue, error) {
	if conf.Block <= 0 {
		conf.Block = 2 * time.Second
	}
	if conf.ClaimIdle <= 0 {
		conf.ClaimIdle = time.Minute
	}

	err := client.XGroupCreateMkStream(ctx, conf.Stream, conf.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errors.QueueErr("create consumer group", err)
	}

	return &JobQueue{
		client:       client,
		conf:         conf,
		dlq:          dlq,
		logger:       logger,
		defaults:     defaults,
		retryKey:     conf.Stream + ":retry",
		completedKey: conf.Stream + ":completed",
	}, nil
}

func (q *JobQueue) Enqueue(ctx context.Context, tx models.Transaction, opts ...queue.Option) (*models.Job, error) {
	job := queue.NewJob(tx, append(append([]queue.Option{}, q.defaults...), opts...)...)
	data, err := json.Marshal(job)
	if err != nil {
		return nil, errors.QueueErr("marshal job", err)
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.conf.Stream,
		Values: map[string]interface{}{"job": string(data)},
	}).Err()
	if err != nil {
		return nil, errors.QueueErr("enqueue", err)
	}
	return &job, nil
}

// Dequeue blocks until a new stream entry is delivered to this consumer or
// ctx is done.
func (q *JobQueue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.conf.Group,
			Consumer: q.conf.Consumer,
			Streams:  []string{q.conf.Stream, ">"}, // Entries never delivered to the group
			Count:    1,                              // One job per consumer at a time
			Block:    q.conf.Block,                   // Returns redis.Nil when nothing arrives
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.QueueErr("dequeue", err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				job, ok := q.decode(msg)
				if !ok {
					q.discard(ctx, msg.ID)
					continue
				}
				// the stored counter holds finished deliveries; this one is the next
				job.Attempts++
				return &queue.Delivery{Job: job, Receipt: msg.ID}, nil
			}
		}
	}
}

func (q *JobQueue) Ack(ctx context.Context, d *queue.Delivery) error {
	n, err := q.client.XAck(ctx, q.conf.Stream, q.conf.Group, d.Receipt).Result()
	if err != nil {
		return errors.QueueErr("ack", err)
	}
	if n == 0 {
		return errors.QueueErr("ack", queue.ErrUnknownDelivery)
	}

	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XDel(ctx, q.conf.Stream, d.Receipt)
		pipe.Incr(ctx, q.completedKey)
		return nil
	})
	if err != nil {
		return errors.QueueErr("ack", err)
	}
	return nil
}

// Fail schedules the retry or dead-letters the job before acknowledging the
// delivery, so a crash in between produces a duplicate rather than a loss.
func (q *JobQueue) Fail(ctx context.Context, d *queue.Delivery, cause error) (queue.Outcome, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.conf.Stream,
		Group:  q.conf.Group,
		Start:  d.Receipt,
		End:    d.Receipt,
		Count:  1,
	}).Result()
	// an empty pending list comes back as redis.Nil
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errors.QueueErr("fail", err)
	}
	if len(pending) == 0 {
		return 0, errors.QueueErr("fail", queue.ErrUnknownDelivery)
	}

	job := d.Job
	outcome := queue.Decide(&job, cause)
	switch outcome {
	case queue.DeadLettered:
		dl := models.DeadLetter{Job: job, Error: job.LastError, FailedAt: time.Now().UTC()}
		if err := q.dlq.Send(ctx, dl); err != nil {
			return 0, err
		}
	default:
		data, err := json.Marshal(job)
		if err != nil {
			return 0, errors.QueueErr("marshal job", err)
		}
		due := time.Now().Add(job.Backoff()).UnixMilli()
		if err := q.client.ZAdd(ctx, q.retryKey, redis.Z{Score: float64(due), Member: string(data)}).Err(); err != nil {
			return 0, errors.QueueErr("schedule retry", err)
		}
	}

	if err := q.settle(ctx, d.Receipt); err != nil {
		return 0, errors.QueueErr("fail", err)
	}
	return outcome, nil
}

func (q *JobQueue) Counts(ctx context.Context) (models.QueueCounts, error) {
	var (
		length    *redis.IntCmd
		pending   *redis.XPendingCmd
		delayed   *redis.IntCmd
		completed *redis.StringCmd
		failed    *redis.IntCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		length = pipe.XLen(ctx, q.conf.Stream)
		pending = pipe.XPending(ctx, q.conf.Stream, q.conf.Group)
		delayed = pipe.ZCard(ctx, q.retryKey)
		completed = pipe.Get(ctx, q.completedKey)
		failed = pipe.LLen(ctx, q.dlq.listName)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.QueueCounts{}, errors.QueueErr("counts", err)
	}

	var active int64
	if p, err := pending.Result(); err == nil && p != nil {
		active = p.Count
	}
	done, _ := completed.Int64()

	return models.QueueCounts{
		Waiting:   length.Val() - active,
		Active:    active,
		Completed: done,
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

func (q *JobQueue) DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	return q.dlq.List(ctx, limit)
}

// Close is a no-op; the redis client belongs to the caller.
func (q *JobQueue) Close() error {
	return nil
}

// PromoteDue moves retries whose backoff has elapsed back onto the stream.
func (q *JobQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	n, err := promoteScript.Run(ctx, q.client, []string{q.retryKey, q.conf.Stream}, now, 100).Int()
	if err != nil {
		return 0, errors.QueueErr("promote retries", err)
	}
	return n, nil
}

// ReclaimStale re-queues deliveries left pending longer than ClaimIdle by a
// consumer that stopped without settling them. The abandoned delivery counts
// as an attempt, so a job that keeps killing its worker is dead-lettered once
// it reaches MaxAttempts.
func (q *JobQueue) ReclaimStale(ctx context.Context) (int, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.conf.Stream,
		Group:    q.conf.Group,
		Consumer: q.conf.Consumer,
		MinIdle:  q.conf.ClaimIdle, // Only deliveries nobody touched for this long
		Start:    "0-0",            // Scan the whole pending list
		Count:    100,
	}).Result()
	if err != nil {
		return 0, errors.QueueErr("reclaim", err)
	}

	for _, msg := range msgs {
		job, ok := q.decode(msg)
		if !ok {
			q.discard(ctx, msg.ID)
			continue
		}
		job.Attempts++

		if outcome := queue.Decide(&job, errAbandoned); outcome == queue.DeadLettered {
			dl := models.DeadLetter{Job: job, Error: job.LastError, FailedAt: time.Now().UTC()}
			if err := q.dlq.Send(ctx, dl); err != nil {
				return 0, err
			}
			q.logger.Error("stale delivery dead-lettered", zap.String("id", job.ID), zap.Int("attempts", job.Attempts))
		} else {
			data, err := json.Marshal(job)
			if err != nil {
				return 0, errors.QueueErr("marshal job", err)
			}
			err = q.client.XAdd(ctx, &redis.XAddArgs{
				Stream: q.conf.Stream,
				Values: map[string]interface{}{"job": string(data)},
			}).Err()
			if err != nil {
				return 0, errors.QueueErr("reclaim", err)
			}
			q.logger.Warn("re-queued stale delivery", zap.String("id", job.ID), zap.String("entry", msg.ID))
		}

		// settle last so a crash here re-queues twice instead of losing the job
		if err := q.settle(ctx, msg.ID); err != nil {
			return 0, errors.QueueErr("reclaim", err)
		}
	}
	return len(msgs), nil
}

// Run promotes due retries and reclaims stale deliveries until ctx is done.
func (q *JobQueue) Run(ctx context.Context, promoteEvery time.Duration) error {
	if promoteEvery <= 0 {
		promoteEvery = time.Second
	}
	promote := time.NewTicker(promoteEvery)
	defer promote.Stop()
	reclaim := time.NewTicker(q.conf.ClaimIdle / 2)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-promote.C:
			if n, err := q.PromoteDue(ctx); err != nil {
				q.logger.Error("retry promotion failed", zap.Error(err))
			} else if n > 0 {
				q.logger.Debug("promoted retries", zap.Int("count", n))
			}
		case <-reclaim.C:
			if _, err := q.ReclaimStale(ctx); err != nil {
				q.logger.Error("stale reclaim failed", zap.Error(err))
			}
		}
	}
}

func (q *JobQueue) decode(msg redis.XMessage) (models.Job, bool) {
	raw, ok := msg.Values["job"].(string)
	if !ok {
		q.logger.Error("bad message format", zap.String("entry", msg.ID))
		return models.Job{}, false
	}
	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Error("bad job json", zap.String("entry", msg.ID), zap.Error(err))
		return models.Job{}, false
	}
	return job, true
}

func (q *JobQueue) settle(ctx context.Context, id string) error {
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, q.conf.Stream, q.conf.Group, id)
		pipe.XDel(ctx, q.conf.Stream, id)
		return nil
	})
	return err
}

func (q *JobQueue) discard(ctx context.Context, id string) {
	if err := q.settle(ctx, id); err != nil {
		q.logger.Error("failed to drop malformed entry", zap.String("entry", id), zap.Error(err))
	}
}
