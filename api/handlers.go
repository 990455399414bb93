package api

import (
	// Go Internal Packages
	"context"
	"fmt"
	"net/http"
	"strconv"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResult, error)
}

type TxRepository interface {
	List(ctx context.Context) ([]models.Transaction, error)
	FindByClientID(ctx context.Context, clientID string) (*models.Transaction, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type HealthReporter interface {
	Report(ctx context.Context) (models.Health, error)
}

type DeadLetterSource interface {
	DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
}

type Handler struct {
	Logger      *zap.Logger
	Intake      Submitter
	TxRepo      TxRepository
	Health      HealthReporter
	DeadLetters DeadLetterSource
}

func NewHandler(logger *zap.Logger, intake Submitter, txRepo TxRepository, health HealthReporter, dl DeadLetterSource) *Handler {
	return &Handler{Logger: logger, Intake: intake, TxRepo: txRepo, Health: health, DeadLetters: dl}
}

func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, "App is running")
}

// Send handles POST /transactions/send.
func (h *Handler) Send(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body missing or invalid JSON"})
		return
	}

	res, err := h.Intake.Submit(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "submit transaction", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// List handles GET /transactions; an empty store answers 204.
func (h *Handler) List(c *gin.Context) {
	txs, err := h.TxRepo.List(c.Request.Context())
	if err != nil {
		h.writeError(c, "list transactions", err)
		return
	}
	if len(txs) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, txs)
}

// Get handles GET /transactions/:id where id is the client identifier.
func (h *Handler) Get(c *gin.Context) {
	tx, err := h.TxRepo.FindByClientID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get transaction", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) Cleanup(c *gin.Context) {
	n, err := h.TxRepo.DeleteAll(c.Request.Context())
	if err != nil {
		h.writeError(c, "cleanup", err)
		return
	}

	msg := "No transactions to delete"
	if n > 0 {
		msg = fmt.Sprintf("DELETED %d transactions successfully.", n)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n, "message": msg})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	report, err := h.Health.Report(c.Request.Context())
	if err != nil {
		h.Logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "queue unavailable"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListDeadLetters returns summaries only; payloads stay in the queue.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	dead, err := h.DeadLetters.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, "list dead letters", err)
		return
	}

	out := make([]models.DeadLetterSummary, 0, len(dead))
	for i := range dead {
		out = append(out, dead[i].Summary())
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps an error kind to a status. Server-side detail is logged,
// never returned.
func (h *Handler) writeError(c *gin.Context, op string, err error) {
	switch errors.KindOf(err) {
	case errors.Invalid:
		body := gin.H{"error": "Missing required fields"}
		var ve *errors.ValidationErrors
		if errors.As(err, &ve) {
			body["fields"] = ve.Fields()
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.NotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction Not Found"})
	default:
		h.Logger.Error(op+" failed", zap.String("kind", errors.KindOf(err).String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
