package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sos_unifio/backend/internal/localstate"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/realtime"
	"github.com/sos_unifio/backend/internal/service"
)

const maxWebhookBody = 1 << 20

// @Summary Realtime webhook
// @Description Receives a nova_ocorrencia event pushed by the backend and dispatches it
// @Tags realtime
// @Accept json
// @Produce json
// @Success 202 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/realtime/nova-ocorrencia [post]
func (h *Handler) RealtimeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read body", err.Error())
		return
	}
	in, err := realtime.Decode(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid occurrence event", err.Error())
		return
	}
	occ, call, err := realtime.Ingest(c.Request.Context(), h.Dispatcher, h.Logger, "webhook", in)
	if errors.Is(err, service.ErrNoEligibleResponder) {
		// accepted; operators take it from here
		c.JSON(http.StatusAccepted, gin.H{"occurrence": occ, "call": nil, "escalated": true})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"occurrence": occ, "call": call, "escalated": false})
}

// @Summary Simulate an occurrence
// @Description Generates a random inbound occurrence, as the test buttons did
// @Tags realtime
// @Produce json
// @Success 201 {object} OccurrenceResponse
// @Router /api/simulate [post]
func (h *Handler) Simulate(c *gin.Context) {
	occ, call, err := h.Simulator.Fire(c.Request.Context())
	if errors.Is(err, service.ErrNoEligibleResponder) {
		writeError(c, http.StatusServiceUnavailable, "NO_ELIGIBLE_RESPONDER", "Occurrence escalated to operators", gin.H{
			"occurrence": occ,
			"reason":     err.Error(),
		})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, OccurrenceResponse{Occurrence: occ, Call: call})
}

// @Summary Campus locations
// @Tags locations
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/locations [get]
func (h *Handler) ListLocations(c *gin.Context) {
	items := h.Locations
	if items == nil {
		items = []models.Location{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Dashboard summary
// @Description Passed through from the backend
// @Tags dashboard
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/dashboard [get]
func (h *Handler) Dashboard(c *gin.Context) {
	if h.Backend == nil {
		writeError(c, http.StatusServiceUnavailable, "BACKEND_DISABLED", "Backend not configured", nil)
		return
	}
	summary, err := h.Backend.DashboardSummary(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to load dashboard", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

type StateValueRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
}

// @Summary Read a persisted state key
// @Tags state
// @Produce json
// @Param key path string true "state key"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/state/{key} [get]
func (h *Handler) GetState(c *gin.Context) {
	if h.State == nil {
		writeError(c, http.StatusServiceUnavailable, "STATE_DISABLED", "Local state not configured", nil)
		return
	}
	key := c.Param("key")
	var value json.RawMessage
	ok, err := h.State.Get(key, &value)
	if errors.Is(err, localstate.ErrUnknownKey) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Unknown state key", key)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STATE_ERROR", "Failed to read state", err.Error())
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "State key not set", key)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// @Summary Write a persisted state key
// @Tags state
// @Accept json
// @Produce json
// @Param key path string true "state key"
// @Param body body StateValueRequest true "value"
// @Success 200 {object} map[string]any
// @Router /api/state/{key} [put]
func (h *Handler) PutState(c *gin.Context) {
	if h.State == nil {
		writeError(c, http.StatusServiceUnavailable, "STATE_DISABLED", "Local state not configured", nil)
		return
	}
	var req StateValueRequest
	if !h.bind(c, &req) {
		return
	}
	key := c.Param("key")
	if err := h.State.Set(key, req.Value); err != nil {
		if errors.Is(err, localstate.ErrUnknownKey) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Unknown state key", key)
			return
		}
		writeError(c, http.StatusInternalServerError, "STATE_ERROR", "Failed to write state", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}
