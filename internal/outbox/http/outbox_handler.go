// Package http provides HTTP handlers for outbox inspection and operations.
// These are operator-facing endpoints: listing delivery state, reading health
// stats, and manually triggering a worker tick.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/helpdesk/internal/httputil"
	"github.com/allisson/helpdesk/internal/outbox/domain"
	"github.com/allisson/helpdesk/internal/outbox/http/dto"
	"github.com/allisson/helpdesk/internal/outbox/usecase"
	customValidation "github.com/allisson/helpdesk/internal/validation"
)

// OutboxHandler handles HTTP requests for outbox inspection and operations.
type OutboxHandler struct {
	statsUseCase usecase.StatsUseCaseInterface
	worker       usecase.WorkerUseCase
	logger       *slog.Logger
}

// NewOutboxHandler creates a new outbox handler with required dependencies.
func NewOutboxHandler(
	statsUseCase usecase.StatsUseCaseInterface,
	worker usecase.WorkerUseCase,
	logger *slog.Logger,
) *OutboxHandler {
	return &OutboxHandler{
		statsUseCase: statsUseCase,
		worker:       worker,
		logger:       logger,
	}
}

// ListEntriesHandler lists outbox entries joined with event metadata.
// GET /v1/outbox/entries?limit=N&status=S
// Returns 200 OK with entries newest-created first.
func (h *OutboxHandler) ListEntriesHandler(c *gin.Context) {
	var req dto.ListEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	var status *domain.Status
	if req.Status != "" {
		parsed, err := domain.ParseStatus(req.Status)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}
		status = &parsed
	}

	entries, err := h.statsUseCase.ListEntries(c.Request.Context(), req.Limit, status)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEntriesToListResponse(entries))
}

// GetStatsHandler returns the queue, runtime, and health snapshot.
// GET /v1/outbox/stats
func (h *OutboxHandler) GetStatsHandler(c *gin.Context) {
	stats, err := h.statsUseCase.GetStats(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RunTickHandler triggers one worker tick outside the poll schedule.
// POST /v1/outbox/ticks
// Returns 200 OK with the tick summary; a tick that would overlap a running
// one reports skipped=true and performs no work.
func (h *OutboxHandler) RunTickHandler(c *gin.Context) {
	summary, err := h.worker.RunOnce(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, summary)
}
