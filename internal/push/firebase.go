package push

import (
	"context"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

// AdminTopic is the FCM topic operator devices subscribe to.
const AdminTopic = "sos-admin"

// Sender delivers one FCM message. *messaging.Client implements it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// TokenLookup resolves a responder's device token.
type TokenLookup func(ctx context.Context, responderID string) (string, bool)

// Notifier pushes offered calls to the responder's device and escalations to
// the operator topic, so responders are reached even with the app closed.
type Notifier struct {
	Sender Sender
	Tokens TokenLookup
	Logger zerolog.Logger
}

func NewFirebaseSender(ctx context.Context, credentialsPath string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}
	return client, nil
}

// Run consumes dispatcher events until ctx is done or the channel closes.
func (n *Notifier) Run(ctx context.Context, events <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := n.Handle(ctx, ev); err != nil {
				n.Logger.Warn().Err(err).Str("event", string(ev.Type)).Str("occurrence_id", ev.Occurrence.ID).Msg("push failed")
			}
		}
	}
}

func (n *Notifier) Handle(ctx context.Context, ev service.Event) error {
	var msg *messaging.Message
	switch ev.Type {
	case service.EventCallOffered:
		token, ok := n.Tokens(ctx, ev.ResponderID)
		if !ok || token == "" {
			return nil
		}
		msg = callMessage(token, ev)
	case service.EventEscalated:
		msg = escalationMessage(ev)
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := n.Sender.Send(ctx, msg)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsSenderIDMismatch(err) {
			n.Logger.Warn().Str("responder_id", ev.ResponderID).Msg("stale device token")
			return nil
		}
		return fmt.Errorf("send %s push: %w", ev.Type, err)
	}
	n.Logger.Info().Str("message_id", id).Str("event", string(ev.Type)).Str("occurrence_id", ev.Occurrence.ID).Msg("push sent")
	return nil
}

func callMessage(token string, ev service.Event) *messaging.Message {
	ttl := time.Until(ev.Call.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	title := "Chamado de urgência"
	if ev.Occurrence.Type == models.TypeEmergencia {
		title = "Chamado de EMERGÊNCIA"
	}
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("%s - %s", ev.Occurrence.LocationName, ev.Occurrence.Description),
		},
		Data: map[string]string{
			"type":          "abrirNotificacaoEmergencia",
			"occurrence_id": ev.Occurrence.ID,
			"call_id":       ev.Call.ID,
			"priority":      string(ev.Occurrence.Priority),
			"expires_at":    strconv.FormatInt(ev.Call.ExpiresAt.Unix(), 10),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
			Notification: &messaging.AndroidNotification{
				Sound:        "alert",
				Priority:     messaging.PriorityMax,
				ChannelID:    "sos_calls",
				DefaultSound: true,
				Color:        "#D32F2F",
			},
		},
	}
}

func escalationMessage(ev service.Event) *messaging.Message {
	return &messaging.Message{
		Topic: AdminTopic,
		Notification: &messaging.Notification{
			Title: "Ocorrência sem socorrista disponível",
			Body:  fmt.Sprintf("%s (%s) precisa de atribuição manual", ev.Occurrence.LocationName, ev.Occurrence.Priority),
		},
		Data: map[string]string{
			"type":          "escalonamento",
			"occurrence_id": ev.Occurrence.ID,
			"reason_code":   ev.ReasonCode,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "alert",
				Priority:  messaging.PriorityHigh,
				ChannelID: "sos_admin",
			},
		},
	}
}
