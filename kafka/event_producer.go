package kafka

import (
	// Go Internal Packages
	"context"
	"encoding/json"

	// Local Packages
	models "tx-intake/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

// EventProducer publishes job events keyed by job id, so every event of one
// transaction lands on the same partition in order.
type EventProducer struct {
	Client *kgo.Client
	Topic  string
	Logger *zap.Logger
}

func NewEventProducer(brokers []string, topic string, metrics *kprom.Metrics, logger *zap.Logger) (*EventProducer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),    // Connects to Kafka brokers
		kgo.DefaultProduceTopic(topic), // Records without a topic go to the events topic
		kgo.AllowAutoTopicCreation(),   // Creates the events topic on first publish
	}
	if metrics != nil {
		opts = append(opts, kgo.WithHooks(metrics)) // Attaches monitoring hooks
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &EventProducer{Client: client, Topic: topic, Logger: logger}, nil
}

func (p *EventProducer) Publish(ctx context.Context, ev models.JobEvent) error {
	record, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return p.Client.ProduceSync(ctx, record).FirstErr()
}

func (p *EventProducer) Close() error {
	p.Client.Close()
	return nil
}

func EncodeEvent(ev models.JobEvent) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Key:   []byte(ev.JobID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}
