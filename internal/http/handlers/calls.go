package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/http/middleware"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

type CallActionRequest struct {
	ResponderID string `json:"responder_id" validate:"required"`
}

// @Summary Pending calls
// @Description Calls waiting on a responder, most recent first. No responder_id lists every pending call.
// @Tags calls
// @Produce json
// @Param responder_id query string false "responder id"
// @Success 200 {object} map[string]any
// @Router /api/calls [get]
func (h *Handler) ListCalls(c *gin.Context) {
	calls, err := h.Dispatcher.Pending(c.Request.Context(), strings.TrimSpace(c.Query("responder_id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if calls == nil {
		calls = []models.IncomingCall{}
	}
	c.JSON(http.StatusOK, gin.H{"items": calls})
}

// @Summary Accept a call
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "call id"
// @Param body body CallActionRequest true "responder"
// @Success 200 {object} models.Occurrence
// @Failure 409 {object} map[string]any
// @Failure 410 {object} map[string]any
// @Router /api/calls/{id}/accept [post]
func (h *Handler) AcceptCall(c *gin.Context) {
	var req CallActionRequest
	if !h.bind(c, &req) {
		return
	}
	if !h.actingAs(c, req.ResponderID) {
		return
	}
	occ, err := h.Dispatcher.Accept(c.Request.Context(), c.Param("id"), req.ResponderID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}

// @Summary Reject a call
// @Description The occurrence is offered to the next eligible responder, or escalated
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "call id"
// @Param body body CallActionRequest true "responder"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/calls/{id}/reject [post]
func (h *Handler) RejectCall(c *gin.Context) {
	var req CallActionRequest
	if !h.bind(c, &req) {
		return
	}
	if !h.actingAs(c, req.ResponderID) {
		return
	}
	next, err := h.Dispatcher.Reject(c.Request.Context(), c.Param("id"), req.ResponderID)
	if errors.Is(err, service.ErrNoEligibleResponder) {
		c.JSON(http.StatusOK, gin.H{"next": nil, "escalated": true})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next": next, "escalated": false})
}

// actingAs rejects a call action on behalf of another responder when the
// request carries a verified token. Admin tokens may act for anyone.
func (h *Handler) actingAs(c *gin.Context, responderID string) bool {
	v, ok := c.Get(middleware.IdentityKey)
	if !ok {
		return true
	}
	id, ok := v.(auth.Identity)
	if !ok || id.Admin || id.ResponderID == responderID {
		return true
	}
	writeError(c, http.StatusForbidden, "FORBIDDEN", "Token does not belong to this responder", nil)
	return false
}
