package processors

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
	queue "tx-intake/queue"

	// External Packages
	"go.uber.org/zap"
)

type TxRepository interface {
	SetStatus(ctx context.Context, tx *models.Transaction, status models.Status) error
	UpsertCompleted(ctx context.Context, tx *models.Transaction) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev models.JobEvent) error
}

// TxProcessor drives one delivered job through
// received -> processing -> completed | failed and settles it on the queue.
type TxProcessor struct {
	Logger     *zap.Logger
	TxRepo     TxRepository
	Queue      queue.Queue
	Publishers []EventPublisher
}

func NewTxProcessor(logger *zap.Logger, txRepo TxRepository, q queue.Queue, publishers ...EventPublisher) *TxProcessor {
	return &TxProcessor{Logger: logger, TxRepo: txRepo, Queue: q, Publishers: publishers}
}

// ProcessJob marks the record processing, then upserts it as completed. On a
// storage error the record is marked failed on a best-effort basis and the
// error is returned for the queue to retry.
func (p *TxProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	tx := job.Transaction
	tx.ID = job.ID
	logger := p.Logger.With(zap.String("id", tx.ID), zap.Int("attempt", job.Attempts))

	if err := p.TxRepo.SetStatus(ctx, &tx, models.StatusProcessing); err != nil {
		p.markFailed(ctx, &tx, logger)
		return storageErr("mark processing", err)
	}
	logger.Debug("transaction processing")

	if err := p.TxRepo.UpsertCompleted(ctx, &tx); err != nil {
		p.markFailed(ctx, &tx, logger)
		return storageErr("upsert completed", err)
	}
	return nil
}

// Handle processes a delivery and sends exactly one terminal signal for it:
// Ack on success, Fail otherwise. The returned event describes that signal.
func (p *TxProcessor) Handle(ctx context.Context, d *queue.Delivery) (models.JobEvent, error) {
	job := d.Job
	ev := models.JobEvent{JobID: job.ID, Attempts: job.Attempts, MaxAttempts: job.MaxAttempts}
	logger := p.Logger.With(zap.String("id", job.ID), zap.Int("attempt", job.Attempts))

	procErr := p.ProcessJob(ctx, &job)
	if procErr == nil {
		if err := p.Queue.Ack(ctx, d); err != nil {
			logger.Error("failed to ack job", zap.Error(err))
			return ev, err
		}
		ev.Type = models.EventCompleted
		logger.Info("transaction processed successfully")
	} else {
		outcome, err := p.Queue.Fail(ctx, d, procErr)
		if err != nil {
			logger.Error("failed to report job failure", zap.NamedError("cause", procErr), zap.Error(err))
			return ev, err
		}
		ev.Error = procErr.Error()
		switch outcome {
		case queue.DeadLettered:
			ev.Type = models.EventDeadLettered
			logger.Error("job dead-lettered", zap.Error(errors.AttemptsExhaustedErr(job.ID, job.Attempts, procErr)))
		default:
			ev.Type = models.EventRetrying
			logger.Warn("transaction failed, retry scheduled", zap.Duration("backoff", job.Backoff()), zap.Error(procErr))
		}
	}

	ev.At = time.Now().UTC()
	p.publish(ctx, ev)
	return ev, nil
}

func (p *TxProcessor) markFailed(ctx context.Context, tx *models.Transaction, logger *zap.Logger) {
	if err := p.TxRepo.SetStatus(ctx, tx, models.StatusFailed); err != nil {
		logger.Warn("could not mark transaction failed", zap.Error(err))
	}
}

func (p *TxProcessor) publish(ctx context.Context, ev models.JobEvent) {
	for _, pub := range p.Publishers {
		if err := pub.Publish(ctx, ev); err != nil {
			p.Logger.Warn("failed to publish job event", zap.String("id", ev.JobID), zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

func storageErr(op string, err error) error {
	if errors.IsKind(err, errors.Storage) {
		return err
	}
	return errors.StorageErr(op, err)
}
