package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/response"
)

// CallFinder looks up a call that may no longer be held in memory.
type CallFinder interface {
	Find(ctx context.Context, id string) (calls.Call, error)
}

// CallHistory lists journaled calls.
type CallHistory interface {
	CallFinder
	ListRecent(ctx context.Context, limit int) ([]calls.Call, error)
}

// CallHandler serves read-only call endpoints for staff dashboards.
type CallHandler struct {
	queue   *calls.Queue
	history CallHistory
	finders []CallFinder
	log     *zap.Logger
}

// NewCallHandler builds a CallHandler. Lookups fall through the live queue,
// then each finder in order, then history.
func NewCallHandler(queue *calls.Queue, history CallHistory, finders ...CallFinder) *CallHandler {
	return &CallHandler{
		queue:   queue,
		history: history,
		finders: finders,
		log:     logger.WithModule("calls-api"),
	}
}

// ListWaiting returns the waiting queue, oldest first.
func (h *CallHandler) ListWaiting(c *gin.Context) {
	waiting := h.queue.ListWaiting()
	summaries := make([]models.CallSummary, 0, len(waiting))
	for _, call := range waiting {
		summaries = append(summaries, call.Summary())
	}
	response.Success(c, http.StatusOK, models.WaitingCallsPayload{Calls: summaries})
}

// Get returns a single call by id.
func (h *CallHandler) Get(c *gin.Context) {
	id := c.Param("callId")
	call, err := h.find(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, call)
}

// History returns the most recent journaled calls.
func (h *CallHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, apperrors.ErrNotFound.WithMessage("call history is not enabled"))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, apperrors.ErrInvalidRequest.WithMessage("limit must be a positive integer"))
			return
		}
		limit = n
	}

	recent, err := h.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, apperrors.ErrInternal.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"calls": recent})
}

func (h *CallHandler) find(ctx context.Context, id string) (calls.Call, error) {
	call, err := h.queue.Get(id)
	if err == nil {
		return call, nil
	}

	sources := h.finders
	if h.history != nil {
		sources = append(sources[:len(sources):len(sources)], h.history)
	}
	for _, src := range sources {
		call, err := src.Find(ctx, id)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, apperrors.ErrCallNotFound) {
			h.log.Warn("call lookup failed", zap.String("call_id", id), zap.Error(err))
		}
	}
	return calls.Call{}, apperrors.ErrCallNotFound.WithMessage("call %s not found", id)
}
