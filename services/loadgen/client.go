package loadgen

import (
	// Go Internal Packages
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	// Local Packages
	models "tx-intake/models"

	// External Packages
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Summary struct {
	Sent       int `json:"sent"`
	Pending    int `json:"pending"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Errors     int `json:"errors"`
}

// Sender posts submissions to POST /transactions/send in parallel batches.
type Sender struct {
	BaseURL   string
	BatchSize int
	Client    *http.Client
	Logger    *zap.Logger
}

func NewSender(baseURL string, batchSize int, logger *zap.Logger) *Sender {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Sender{
		BaseURL:   baseURL,
		BatchSize: batchSize,
		Client:    &http.Client{Timeout: 10 * time.Second},
		Logger:    logger,
	}
}

// SendAll posts reqs BatchSize at a time; a batch finishes before the next
// one starts. Individual request failures are counted, not returned.
func (s *Sender) SendAll(ctx context.Context, reqs []models.SubmitRequest) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)

	for start := 0; start < len(reqs); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, req := range reqs[start:end] {
			req := req
			g.Go(func() error {
				res, status, err := s.Send(gctx, req)

				mu.Lock()
				defer mu.Unlock()
				sum.Sent++
				switch {
				case err != nil:
					sum.Errors++
					s.Logger.Warn("transaction failed", zap.String("client_id", string(req.ClientID)), zap.Error(err))
				case status == http.StatusBadRequest:
					sum.Rejected++
				case res.Status == models.OutcomeDuplicate:
					sum.Duplicates++
				default:
					sum.Pending++
					s.Logger.Debug("transaction queued", zap.String("client_id", string(req.ClientID)), zap.String("id", res.ID))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return sum, err
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (s *Sender) Send(ctx context.Context, req models.SubmitRequest) (models.SubmitResult, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.SubmitResult{}, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/transactions/send", bytes.NewReader(body))
	if err != nil {
		return models.SubmitResult{}, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return models.SubmitResult{}, 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res models.SubmitResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return models.SubmitResult{}, resp.StatusCode, err
		}
		return res, resp.StatusCode, nil
	case http.StatusBadRequest:
		return models.SubmitResult{}, resp.StatusCode, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.SubmitResult{}, resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}
