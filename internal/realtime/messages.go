package realtime

import (
	"time"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/presenter"
	"github.com/sos_unifio/backend/internal/service"
)

// Message types exchanged with the responder app and the realtime backend.
const (
	MsgNewOccurrence  = "nova_ocorrencia"
	MsgOpenEmergency  = "abrirNotificacaoEmergencia"
	MsgCloseEmergency = "fecharNotificacaoEmergencia"
	MsgNotice         = "aviso"
	MsgEscalation     = "escalonamento"
	MsgAccepted       = "atendimentoAssumido"
	MsgError          = "erro"
	MsgPong           = "pong"
	ClientAccept      = "accept"
	ClientReject      = "reject"
	ClientDismiss     = "dismiss"
	ClientPing        = "ping"
)

// Envelope wraps every frame on the wire.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ClientMessage is a frame sent by the responder app.
type ClientMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
}

// EmergencyPayload opens the incoming-call screen on the responder app.
type EmergencyPayload struct {
	ID                     string            `json:"id"`
	CallID                 string            `json:"call_id"`
	Occurrence             models.Occurrence `json:"occurrence"`
	AttemptedRespondersIDs []string          `json:"attemptedRespondersIds"`
	ExpiresAt              time.Time         `json:"expires_at"`
	RemainingSeconds       int               `json:"remaining_seconds"`
	Queued                 int               `json:"queued"`
}

func emergencyPayload(v presenter.View) EmergencyPayload {
	return EmergencyPayload{
		ID:                     v.Occurrence.ID,
		CallID:                 v.Call.ID,
		Occurrence:             v.Occurrence,
		AttemptedRespondersIDs: append([]string{}, v.Call.AttemptedResponderIDs...),
		ExpiresAt:              v.Call.ExpiresAt,
		RemainingSeconds:       int(v.Remaining.Round(time.Second) / time.Second),
		Queued:                 v.Queued,
	}
}

// EscalationPayload is sent to admin sessions when nobody is left to offer a call to.
type EscalationPayload struct {
	Occurrence models.Occurrence `json:"occurrence"`
	ReasonCode string            `json:"reason_code"`
	At         time.Time         `json:"at"`
}

func escalationPayload(ev service.Event) EscalationPayload {
	return EscalationPayload{Occurrence: ev.Occurrence, ReasonCode: ev.ReasonCode, At: ev.At}
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
