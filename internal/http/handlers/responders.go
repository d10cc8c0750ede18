package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/models"
)

// AvailabilityStore persists a responder's availability. *db.Store implements it.
type AvailabilityStore interface {
	SetResponderAvailability(ctx context.Context, id string, available bool) error
}

type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// @Summary Responder roster
// @Tags responders
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/responders [get]
func (h *Handler) ListResponders(c *gin.Context) {
	items, err := h.Dispatcher.Responders(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Set responder availability
// @Description A responder becoming available is offered escalated occurrences
// @Tags responders
// @Accept json
// @Produce json
// @Param id path string true "responder id"
// @Param body body AvailabilityRequest true "availability"
// @Success 200 {object} models.Responder
// @Router /api/responders/{id}/availability [put]
func (h *Handler) SetAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	r, err := h.Dispatcher.SetAvailability(ctx, c.Param("id"), *req.Available)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if h.Availability != nil {
		if err := h.Availability.SetResponderAvailability(ctx, r.ID, r.Available); err != nil {
			h.Logger.Warn().Err(err).Str("responder_id", r.ID).Msg("failed to persist availability")
		}
	}
	c.JSON(http.StatusOK, r)
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// @Summary Issue a responder token
// @Description Signed token for the call endpoints and the notification socket
// @Tags responders
// @Produce json
// @Param id path string true "responder id"
// @Success 200 {object} TokenResponse
// @Failure 404 {object} map[string]any
// @Router /api/responders/{id}/token [post]
func (h *Handler) IssueToken(c *gin.Context) {
	if h.Tokens == nil {
		writeError(c, http.StatusServiceUnavailable, "AUTH_DISABLED", "Token signing not configured", nil)
		return
	}
	roster, err := h.Dispatcher.Responders(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	id := c.Param("id")
	for _, r := range roster {
		if r.ID != id {
			continue
		}
		token, expires, err := h.Tokens.Issue(auth.Identity{
			ResponderID: r.ID,
			Role:        string(r.Role),
			Admin:       r.Role == models.RoleAdmin,
		})
		if err != nil {
			writeError(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to sign token", err.Error())
			return
		}
		c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
		return
	}
	writeError(c, http.StatusNotFound, "NOT_FOUND", "Responder not found", id)
}
