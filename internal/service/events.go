package service

import (
	"time"

	"github.com/sos_unifio/backend/internal/models"
)

type EventType string

const (
	EventCallOffered    EventType = "call_offered"
	EventCallAccepted   EventType = "call_accepted"
	EventCallRedirected EventType = "call_redirected"
	EventCallExpired    EventType = "call_expired"
	EventCallCancelled  EventType = "call_cancelled"
	EventAssigned       EventType = "occurrence_assigned"
	EventEscalated      EventType = "dispatch_escalated"
)

// Event is published by the dispatcher after every state change. Call is the
// call the event is about in its final state; ResponderID names the responder
// affected (the one offered, who accepted, who rejected or who missed it).
type Event struct {
	Type        EventType           `json:"type"`
	Call        models.IncomingCall `json:"call"`
	Occurrence  models.Occurrence   `json:"occurrence"`
	ResponderID string              `json:"responder_id,omitempty"`
	ReasonCode  string              `json:"reason_code,omitempty"`
	At          time.Time           `json:"at"`
}
