package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/localstate"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/realtime"
	"github.com/sos_unifio/backend/internal/service"
)

// Pinger is satisfied by *db.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is the slice of the REST collaborator the API proxies to.
// *backendapi.Client implements it.
type Backend interface {
	GetOccurrence(ctx context.Context, id string) (models.Occurrence, error)
	DashboardSummary(ctx context.Context) (map[string]any, error)
}

type Handler struct {
	Dispatcher   *service.Dispatcher
	Store        Pinger
	Availability AvailabilityStore
	Backend      Backend
	State        *localstate.Store
	Simulator    *realtime.Simulator
	Tokens       *auth.Tokens
	Locations    []models.Location
	Validator    *validator.Validate
	Logger       zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if _, err := h.Dispatcher.Responders(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DISPATCHER_UNAVAILABLE", "Dispatcher unavailable", err.Error())
		return
	}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// writeServiceError maps dispatcher and store sentinels to HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	code := service.ErrorCode(err)
	status := http.StatusInternalServerError
	message := "Internal error"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrInvalidRequest):
		status, message = http.StatusBadRequest, "Validation failed"
	case errors.Is(err, service.ErrInvalidTransition):
		status, message = http.StatusConflict, "Invalid status transition"
	case errors.Is(err, service.ErrCallNotPending):
		status, message = http.StatusConflict, "Call is no longer pending"
	case errors.Is(err, service.ErrOccurrenceCancelled):
		status, message = http.StatusGone, "Occurrence was cancelled"
	case errors.Is(err, service.ErrNoEligibleResponder):
		status, message = http.StatusServiceUnavailable, "No eligible responder"
	case errors.Is(err, service.ErrDispatcherStopped), errors.Is(err, context.DeadlineExceeded):
		status, message, code = http.StatusServiceUnavailable, "Dispatcher unavailable", "UNAVAILABLE"
	}
	writeError(c, status, code, message, err.Error())
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
