package kafka

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Local Packages
	apperrors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Brokers        []string
	Name           string
	Topic          string
	RecordsPerPoll int
}

type Submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResult, error)
}

// TxConsumer feeds transaction submissions from a topic into the same intake
// path as POST /transactions/send.
type TxConsumer struct {
	Client       *kgo.Client
	Config       *ConsumerConfig
	Submitter    Submitter
	Logger       *zap.Logger
	RetryBackoff time.Duration // wait between submit attempts of one record
}

// NewTxConsumer creates the consumer group client (PS: Must call Poll to start
// consuming the records)
func NewTxConsumer(conf *ConsumerConfig, submitter Submitter, metrics *kprom.Metrics, logger *zap.Logger) (*TxConsumer, error) {
	c := &TxConsumer{Config: conf, Submitter: submitter, Logger: logger, RetryBackoff: time.Second}

	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...), // Connects to Kafka brokers
		kgo.ConsumerGroup(conf.Name),     // Joins the intake consumer group
		kgo.ConsumeTopics(conf.Topic),    // Single submissions topic
		kgo.DisableAutoCommit(),          // Offsets are committed after a batch is submitted
		kgo.BlockRebalanceOnPoll(),       // No partition moves while a batch is in flight
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics)) // Attaches monitoring hooks
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	c.Client = client
	return c, nil
}

// Poll consumes until ctx is done. Records are committed once every record of
// the poll was either submitted or rejected as invalid. A batch cut short by
// ctx is left uncommitted and is read again from the committed offset by the
// next member of the group.
func (c *TxConsumer) Poll(ctx context.Context) error {
	defer c.Client.Close()

	for {
		// Check if the context is canceled before polling
		if ctx.Err() != nil {
			c.Logger.Info("polling stopped: context canceled")
			return nil
		}

		fetches := c.Client.PollRecords(ctx, c.Config.RecordsPerPoll)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		if errors.Is(fetches.Err0(), context.Canceled) {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.Logger.Error("fetch error", zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})

		kRecords := fetches.Records()
		records := make([]models.Record, len(kRecords))
		for idx, record := range kRecords {
			records[idx] = models.Record{Key: record.Key, Value: record.Value, Topic: record.Topic}
		}

		if err := c.ProcessRecords(ctx, records); err != nil {
			c.Logger.Warn("batch interrupted, leaving it uncommitted", zap.Int("records", len(records)), zap.Error(err))
			c.Client.AllowRebalance()
			return nil
		}

		if err := c.Client.CommitRecords(ctx, kRecords...); err != nil {
			c.Logger.Error("commit failed", zap.Error(err))
		}
		c.Client.AllowRebalance()
	}
}

// ProcessRecords submits each record in order. Malformed or invalid records
// are logged and skipped. Any other submit error is retried for the same
// record every RetryBackoff, so the batch only ends early when ctx is done.
func (c *TxConsumer) ProcessRecords(ctx context.Context, records []models.Record) error {
	for _, record := range records {
		req, err := DecodeRecord(record)
		if err != nil {
			c.Logger.Warn("skipping malformed record", zap.ByteString("key", record.Key), zap.Error(err))
			continue
		}
		if err := c.submit(ctx, record, req); err != nil {
			return err
		}
	}
	return nil
}

func (c *TxConsumer) submit(ctx context.Context, record models.Record, req models.SubmitRequest) error {
	for attempt := 1; ; attempt++ {
		res, err := c.Submitter.Submit(ctx, req)
		if err == nil {
			c.Logger.Debug("record submitted", zap.String("status", res.Status), zap.String("id", res.ID))
			return nil
		}
		if apperrors.IsKind(err, apperrors.Invalid) {
			c.Logger.Warn("skipping invalid transaction", zap.ByteString("key", record.Key), zap.Error(err))
			return nil
		}

		c.Logger.Error("submit failed, retrying record", zap.ByteString("key", record.Key), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("submit record %s: %w", record.Key, err)
		case <-time.After(c.RetryBackoff):
		}
	}
}

func DecodeRecord(record models.Record) (models.SubmitRequest, error) {
	var req models.SubmitRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		return models.SubmitRequest{}, apperrors.InvalidBodyErr(err)
	}
	return req, nil
}
