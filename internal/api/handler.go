package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/rank"
	"queue-ticketing-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  *engine.Engine
	search  *rank.Service
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, eng *engine.Engine, search *rank.Service, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  eng,
		search:  search,
		webpush: webpushOptions,
	}
}

// fail maps engine errors onto HTTP statuses and writes the JSON error body.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrQueueClosed),
		errors.Is(err, engine.ErrQueueFull),
		errors.Is(err, engine.ErrQueueEmpty),
		errors.Is(err, engine.ErrNoPendingTicket),
		errors.Is(err, engine.ErrDuplicateTicket),
		errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrInvalidOffer),
		errors.Is(err, engine.ErrInvalidSwap),
		errors.Is(err, engine.ErrNotCalled),
		errors.Is(err, engine.ErrTooFar):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
