package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

type CreateOccurrenceRequest struct {
	RequesterID    string   `json:"requester_id" validate:"max=128"`
	RequesterName  string   `json:"requester_name" validate:"required,max=200"`
	RequesterRole  string   `json:"requester_role" validate:"omitempty,oneof=socorrista colaborador professor aluno admin"`
	Description    string   `json:"description" validate:"max=2000"`
	Symptoms       []string `json:"symptoms" validate:"dive,required,max=64"`
	PeopleCount    string   `json:"people_count" validate:"required,oneof=1 2-3 3+"`
	LocationID     string   `json:"location_id" validate:"max=128"`
	LocationName   string   `json:"location_name" validate:"required,max=200"`
	LocationDetail string   `json:"location_detail" validate:"max=500"`
}

type OccurrenceResponse struct {
	Occurrence models.Occurrence    `json:"occurrence"`
	Call       *models.IncomingCall `json:"call,omitempty"`
}

// @Summary Open an occurrence
// @Description Classifies the request and offers it to the first eligible responder
// @Tags occurrences
// @Accept json
// @Produce json
// @Param body body CreateOccurrenceRequest true "occurrence"
// @Success 201 {object} OccurrenceResponse
// @Failure 400 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /api/occurrences [post]
func (h *Handler) CreateOccurrence(c *gin.Context) {
	var req CreateOccurrenceRequest
	if !h.bind(c, &req) {
		return
	}
	symptoms := make([]models.SymptomTag, 0, len(req.Symptoms))
	for _, s := range req.Symptoms {
		symptoms = append(symptoms, models.SymptomTag(strings.ToLower(strings.TrimSpace(s))))
	}

	occ, call, err := h.Dispatcher.Open(c.Request.Context(), service.CreateRequest{
		RequesterID:    req.RequesterID,
		RequesterName:  req.RequesterName,
		RequesterRole:  req.RequesterRole,
		Description:    req.Description,
		Symptoms:       symptoms,
		PeopleCount:    models.PeopleCount(req.PeopleCount),
		LocationID:     req.LocationID,
		LocationName:   req.LocationName,
		LocationDetail: req.LocationDetail,
	})
	if errors.Is(err, service.ErrNoEligibleResponder) {
		// the occurrence exists and waits for an operator
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

// @Summary List occurrences
// @Description Active occurrences, newest first. all=true includes closed ones.
// @Tags occurrences
// @Produce json
// @Param all query bool false "include concluded and cancelled"
// @Success 200 {object} map[string]any
// @Router /api/occurrences [get]
func (h *Handler) ListOccurrences(c *gin.Context) {
	var items []models.Occurrence
	if all := c.Query("all"); all == "1" || strings.EqualFold(all, "true") {
		items = h.Dispatcher.Store.List()
	} else {
		items = h.Dispatcher.Store.ListActive()
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Occurrence details
// @Tags occurrences
// @Produce json
// @Param id path string true "occurrence id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/occurrences/{id} [get]
func (h *Handler) GetOccurrence(c *gin.Context) {
	id := c.Param("id")
	occ, err := h.Dispatcher.Store.Get(id)
	if errors.Is(err, service.ErrNotFound) && h.Backend != nil {
		occ, err = h.Backend.GetOccurrence(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"occurrence": occ, "source": "backend"})
			return
		}
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	attempted, err := h.Dispatcher.Attempted(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"occurrence": occ, "attempted_responders_ids": attempted, "source": "local"})
}

type UpdateOccurrenceRequest struct {
	Status         *string `json:"status" validate:"omitempty,oneof=aberto triagem em_atendimento a_caminho no_local concluido cancelado"`
	Type           *string `json:"type" validate:"omitempty,oneof=urgencia emergencia"`
	Priority       *string `json:"priority" validate:"omitempty,oneof=baixa media alta critica"`
	AssignedTo     *string `json:"assigned_to" validate:"omitempty,max=128"`
	Description    *string `json:"description" validate:"omitempty,max=2000"`
	LocationDetail *string `json:"location_detail" validate:"omitempty,max=500"`
	Override       bool    `json:"override"`
}

func (r UpdateOccurrenceRequest) changes() service.OccurrenceChanges {
	ch := service.OccurrenceChanges{
		AssignedTo:     r.AssignedTo,
		Description:    r.Description,
		LocationDetail: r.LocationDetail,
		Override:       r.Override,
	}
	if r.Status != nil {
		st := models.Status(*r.Status)
		ch.Status = &st
	}
	if r.Type != nil {
		t := models.OccurrenceType(*r.Type)
		ch.Type = &t
	}
	if r.Priority != nil {
		p := models.Priority(*r.Priority)
		ch.Priority = &p
	}
	return ch
}

// @Summary Update an occurrence
// @Description Partial update. Moving the status backwards needs override=true.
// @Tags occurrences
// @Accept json
// @Produce json
// @Param id path string true "occurrence id"
// @Param body body UpdateOccurrenceRequest true "changes"
// @Success 200 {object} models.Occurrence
// @Failure 409 {object} map[string]any
// @Router /api/occurrences/{id} [patch]
func (h *Handler) UpdateOccurrence(c *gin.Context) {
	var req UpdateOccurrenceRequest
	if !h.bind(c, &req) {
		return
	}
	occ, err := h.Dispatcher.UpdateOccurrence(c.Request.Context(), c.Param("id"), req.changes())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}

// @Summary Cancel an occurrence
// @Tags occurrences
// @Produce json
// @Param id path string true "occurrence id"
// @Success 200 {object} models.Occurrence
// @Failure 409 {object} map[string]any
// @Router /api/occurrences/{id}/cancel [post]
func (h *Handler) CancelOccurrence(c *gin.Context) {
	occ, err := h.Dispatcher.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}

type AssignRequest struct {
	ResponderID string `json:"responder_id" validate:"required"`
}

// @Summary Assign an occurrence
// @Description Operator assignment, usually of an escalated occurrence
// @Tags occurrences
// @Accept json
// @Produce json
// @Param id path string true "occurrence id"
// @Param body body AssignRequest true "responder"
// @Success 200 {object} models.Occurrence
// @Router /api/occurrences/{id}/assign [post]
func (h *Handler) AssignOccurrence(c *gin.Context) {
	var req AssignRequest
	if !h.bind(c, &req) {
		return
	}
	occ, err := h.Dispatcher.Assign(c.Request.Context(), c.Param("id"), req.ResponderID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.Logger.Info().Str("occurrence_id", occ.ID).Str("responder_id", req.ResponderID).Msg("occurrence assigned by operator")
	c.JSON(http.StatusOK, occ)
}
