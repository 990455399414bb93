package intake

import (
	// Go Internal Packages
	"context"
	"strings"
	"time"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"
	queue "tx-intake/queue"
	dedup "tx-intake/services/dedup"

	// External Packages
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Detector interface {
	Check(ctx context.Context, key models.IdempotencyKey) (string, bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, tx models.Transaction, opts ...queue.Option) (*models.Job, error)
}

// Service accepts transaction submissions: it validates them, short-circuits
// duplicates and enqueues everything else for the workers.
type Service struct {
	Logger   *zap.Logger
	Detector Detector
	Queue    Enqueuer
	Options  []queue.Option
	NewID    func() string
}

func NewService(logger *zap.Logger, detector Detector, q Enqueuer, opts ...queue.Option) *Service {
	return &Service{Logger: logger, Detector: detector, Queue: q, Options: opts, NewID: uuid.NewString}
}

func (s *Service) Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResult, error) {
	tx, err := Validate(req)
	if err != nil {
		return models.SubmitResult{}, err
	}

	existingID, found, err := s.Detector.Check(ctx, tx.Key())
	if err != nil {
		return models.SubmitResult{}, err
	}
	if found {
		s.Logger.Debug("duplicate submission", zap.String("client_id", tx.ClientID), zap.String("id", existingID))
		return models.SubmitResult{
			Status:  models.OutcomeDuplicate,
			Message: "Transaction already exists",
			ID:      existingID,
		}, nil
	}

	tx.ID = s.NewID()
	if _, err := s.Queue.Enqueue(ctx, tx, s.Options...); err != nil {
		if !errors.IsKind(err, errors.Queue) {
			err = errors.QueueErr("enqueue", err)
		}
		return models.SubmitResult{}, err
	}

	s.Logger.Debug("transaction queued", zap.String("client_id", tx.ClientID), zap.String("id", tx.ID))
	return models.SubmitResult{
		Status:  models.OutcomePending,
		Message: "Transaction queued successfully",
		ID:      tx.ID,
	}, nil
}

// Validate checks the required fields and builds the pending transaction
// without an id.
func Validate(req models.SubmitRequest) (models.Transaction, error) {
	ve := errors.ValidationErrs()

	clientID := strings.TrimSpace(string(req.ClientID))
	if clientID == "" {
		ve.Add("id", "cannot be empty")
	}
	if req.Amount == nil {
		ve.Add("amount", "cannot be empty")
	} else if !req.Amount.IsPositive() {
		ve.Add("amount", "must be a positive number")
	}
	if strings.TrimSpace(req.Currency) == "" {
		ve.Add("currency", "cannot be empty")
	}
	if strings.TrimSpace(req.Description) == "" {
		ve.Add("description", "cannot be empty")
	}

	var ts time.Time
	if req.Timestamp == "" {
		ve.Add("timestamp", "cannot be empty")
	} else {
		parsed, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			ve.Add("timestamp", "must be an RFC 3339 time")
		}
		ts = parsed.UTC()
	}

	if err := ve.Err(); err != nil {
		return models.Transaction{}, err
	}

	tx := models.Transaction{
		ClientID:    clientID,
		Amount:      *req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Timestamp:   ts,
		Metadata:    req.Metadata,
		Status:      models.StatusPending,
	}
	return tx, dedup.ValidateKey(tx.Key())
}
