package config

import (
	// Go Internal Packages
	"time"

	// Local Packages
	errors "tx-intake/errors"
)

var DefaultConfig = []byte(`
application: "tx-intake"

logger:
  level: "info"

is_prod_mode: false

http:
  port: "3000"
  shutdown_timeout: "10s"

store:
  driver: "mongo"

mongo:
  uri: "mongodb://localhost:27017"
  database: "txintake"
  collection: "transactions"

bolt:
  path: "transactions.db"

queue:
  driver: "redis"
  max_attempts: 5
  backoff: "5s"
  promote_interval: "1s"
  claim_idle: "1m"

redis:
  uri: "localhost:6379"
  password: ""
  db: 0
  stream: "transactions:jobs"
  group: "transaction-workers"
  consumer: "worker-1"
  dead_letter_list: "failed-transactions"

worker:
  concurrency: 4

kafka:
  brokers:
    - "localhost:9092"
  consume: false
  topic: "transactions"
  records_per_poll: 500
  consumer_name: "tx-intake"
  publish_events: false
  events_topic: "transaction-events"
`)

const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverMongo  = "mongo"
	DriverRedis  = "redis"
)

type Config struct {
	Application string `koanf:"application"`
	Logger      Logger `koanf:"logger"`
	IsProdMode  bool   `koanf:"is_prod_mode"`
	HTTP        HTTP   `koanf:"http"`
	Store       Store  `koanf:"store"`
	Mongo       Mongo  `koanf:"mongo"`
	Bolt        Bolt   `koanf:"bolt"`
	Queue       Queue  `koanf:"queue"`
	Redis       Redis  `koanf:"redis"`
	Worker      Worker `koanf:"worker"`
	Kafka       Kafka  `koanf:"kafka"`
}

type Logger struct {
	Level string `koanf:"level"`
}

type HTTP struct {
	Port            string        `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type Store struct {
	Driver string `koanf:"driver"`
}

type Mongo struct {
	URI        string `koanf:"uri"`
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`
}

type Bolt struct {
	Path string `koanf:"path"`
}

type Queue struct {
	Driver          string        `koanf:"driver"`
	MaxAttempts     int           `koanf:"max_attempts"`
	Backoff         time.Duration `koanf:"backoff"`
	PromoteInterval time.Duration `koanf:"promote_interval"`
	ClaimIdle       time.Duration `koanf:"claim_idle"`
}

type Redis struct {
	URI            string `koanf:"uri"`
	Password       string `koanf:"password"`
	DB             int    `koanf:"db"`
	Stream         string `koanf:"stream"`
	Group          string `koanf:"group"`
	Consumer       string `koanf:"consumer"`
	DeadLetterList string `koanf:"dead_letter_list"`
}

type Worker struct {
	Concurrency int `koanf:"concurrency"`
}

type Kafka struct {
	Brokers        []string `koanf:"brokers"`
	Consume        bool     `koanf:"consume"`
	Topic          string   `koanf:"topic"`
	RecordsPerPoll int      `koanf:"records_per_poll"`
	ConsumerName   string   `koanf:"consumer_name"`
	PublishEvents  bool     `koanf:"publish_events"`
	EventsTopic    string   `koanf:"events_topic"`
}

// KafkaEnabled reports whether any Kafka component has to be started.
func (c *Config) KafkaEnabled() bool {
	return c.Kafka.Consume || c.Kafka.PublishEvents
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := errors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.HTTP.Port == "" {
		ve.Add("http.port", "cannot be empty")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverBolt:
		if c.Bolt.Path == "" {
			ve.Add("bolt.path", "cannot be empty")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			ve.Add("mongo.uri", "cannot be empty")
		}
		if c.Mongo.Database == "" {
			ve.Add("mongo.database", "cannot be empty")
		}
		if c.Mongo.Collection == "" {
			ve.Add("mongo.collection", "cannot be empty")
		}
	default:
		ve.Add("store.driver", "must be one of memory, bolt, mongo")
	}

	switch c.Queue.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URI == "" {
			ve.Add("redis.uri", "cannot be empty")
		}
		if c.Redis.Stream == "" {
			ve.Add("redis.stream", "cannot be empty")
		}
		if c.Redis.Group == "" {
			ve.Add("redis.group", "cannot be empty")
		}
		if c.Redis.Consumer == "" {
			ve.Add("redis.consumer", "cannot be empty")
		}
	default:
		ve.Add("queue.driver", "must be one of memory, redis")
	}

	if c.Queue.MaxAttempts < 1 {
		ve.Add("queue.max_attempts", "must be at least 1")
	}
	if c.Queue.Backoff < 0 {
		ve.Add("queue.backoff", "cannot be negative")
	}
	if c.Worker.Concurrency < 1 {
		ve.Add("worker.concurrency", "must be at least 1")
	}

	if c.KafkaEnabled() && len(c.Kafka.Brokers) == 0 {
		ve.Add("kafka.brokers", "cannot be empty")
	}
	if c.Kafka.Consume && c.Kafka.Topic == "" {
		ve.Add("kafka.topic", "cannot be empty")
	}
	if c.Kafka.PublishEvents && c.Kafka.EventsTopic == "" {
		ve.Add("kafka.events_topic", "cannot be empty")
	}

	return ve.Err()
}
