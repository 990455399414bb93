package main

import (
	// Go Internal Packages
	"context"
	"errors"
	"net/http"
	"time"

	// Local Packages
	api "tx-intake/api"
	config "tx-intake/config"
	kafka "tx-intake/kafka"
	queue "tx-intake/queue"
	boltrepo "tx-intake/repositories/bolt"
	memory "tx-intake/repositories/memory"
	mongodb "tx-intake/repositories/mongodb"
	redisrepo "tx-intake/repositories/redis"
	dedup "tx-intake/services/dedup"
	health "tx-intake/services/health"
	intake "tx-intake/services/intake"
	processors "tx-intake/services/processors"

	// External Packages
	"github.com/gin-gonic/gin"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type txStore interface {
	api.TxRepository
	dedup.TxRepository
	processors.TxRepository
	Close() error
}

// queueMaintainer is implemented by queues that need a background loop for
// delayed retries and stale deliveries.
type queueMaintainer interface {
	Run(ctx context.Context, promoteEvery time.Duration) error
}

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      txStore
	Queue      queue.Queue
	Maintainer queueMaintainer
	Reporter   *health.Reporter
	Intake     *intake.Service
	Worker     *processors.Worker
	Consumer   *kafka.TxConsumer
	Producer   *kafka.EventProducer
	Router     *gin.Engine

	closers []func() error
}

// NewApp connects every backend named by the config and wires the services
// on top of them. Partially opened resources are closed on error.
func NewApp(ctx context.Context, conf *config.Config, logger *zap.Logger) (_ *App, err error) {
	app := &App{Config: conf, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	// Record store
	if app.Store, err = openStore(ctx, conf, logger); err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Store.Close)

	// Job queue, every job gets the configured retry policy
	defaults := []queue.Option{
		queue.WithMaxAttempts(conf.Queue.MaxAttempts),
		queue.WithBackoff(conf.Queue.Backoff),
	}
	if err = app.openQueue(ctx, defaults); err != nil {
		return nil, err
	}

	// Kafka client metrics, served on /metrics
	metrics := kprom.NewMetrics("txintake")
	app.Reporter = health.NewReporter(app.Queue)
	publishers := []processors.EventPublisher{app.Reporter}
	if conf.Kafka.PublishEvents {
		app.Producer, err = kafka.NewEventProducer(conf.Kafka.Brokers, conf.Kafka.EventsTopic, metrics, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, app.Producer.Close)
		publishers = append(publishers, app.Producer)
	}

	// Intake and worker share the store and the queue
	detector := dedup.NewDetector(app.Store)
	app.Intake = intake.NewService(logger, detector, app.Queue, defaults...)

	processor := processors.NewTxProcessor(logger, app.Store, app.Queue, publishers...)
	app.Worker = processors.NewWorker(app.Queue, processor, conf.Worker.Concurrency, logger)

	if conf.Kafka.Consume {
		consumerConf := &kafka.ConsumerConfig{
			Brokers:        conf.Kafka.Brokers,
			Name:           conf.Kafka.ConsumerName,
			Topic:          conf.Kafka.Topic,
			RecordsPerPoll: conf.Kafka.RecordsPerPoll,
		}
		app.Consumer, err = kafka.NewTxConsumer(consumerConf, app.Intake, metrics, logger)
		if err != nil {
			return nil, err
		}
	}

	if conf.IsProdMode {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(logger, app.Intake, app.Store, app.Reporter, app.Queue)
	app.Router = api.NewRouter(handler, metrics.Handler())
	return app, nil
}

func openStore(ctx context.Context, conf *config.Config, logger *zap.Logger) (txStore, error) {
	switch conf.Store.Driver {
	case config.DriverMemory:
		return memory.NewTxRepository(), nil
	case config.DriverBolt:
		return boltrepo.NewTxRepository(conf.Bolt.Path)
	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, conf.Mongo.URI)
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewTxRepository(client, conf.Mongo.Database, conf.Mongo.Collection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		logger.Info("connected to mongo", zap.String("database", conf.Mongo.Database))
		return repo, nil
	}
	return nil, errors.New("unknown store driver " + conf.Store.Driver)
}

func (a *App) openQueue(ctx context.Context, defaults []queue.Option) error {
	conf := a.Config
	switch conf.Queue.Driver {
	case config.DriverMemory:
		q := queue.NewMemoryQueue(defaults...)
		a.Queue = q
		a.closers = append(a.closers, q.Close)
		return nil
	case config.DriverRedis:
		client, err := redisrepo.Connect(ctx, conf.Redis.URI, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)

		dlq := redisrepo.NewDeadLetterQueue(client, a.Logger, conf.Redis.DeadLetterList)
		jobConf := redisrepo.JobQueueConfig{
			Stream:    conf.Redis.Stream,
			Group:     conf.Redis.Group,
			Consumer:  conf.Redis.Consumer,
			ClaimIdle: conf.Queue.ClaimIdle,
		}
		q, err := redisrepo.NewJobQueue(ctx, client, jobConf, dlq, a.Logger, defaults...)
		if err != nil {
			return err
		}
		a.Queue = q
		a.Maintainer = q
		a.closers = append(a.closers, q.Close)
		a.Logger.Info("connected to redis", zap.String("stream", conf.Redis.Stream))
		return nil
	}
	return errors.New("unknown queue driver " + conf.Queue.Driver)
}

// Serve runs the HTTP server until ctx is done, then drains in-flight
// requests for at most http.shutdown_timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + a.Config.HTTP.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
