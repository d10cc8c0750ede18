package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/metrics"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/presenter"
	"github.com/sos_unifio/backend/internal/service"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Backend is the dispatcher surface a websocket session needs.
type Backend interface {
	presenter.Actions
	Subscribe(buffer int) (<-chan service.Event, func())
	Pending(ctx context.Context, responderID string) ([]models.IncomingCall, error)
}

// TokenVerifier resolves a session token. *auth.Tokens implements it.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Hub serves /ws. Each responder session gets its own presenter; admin
// sessions also receive escalations. With Tokens set the identity comes from
// the token and the responder_id and admin query parameters are ignored.
type Hub struct {
	Backend        Backend
	Lookup         func(id string) (models.Occurrence, error)
	Clock          service.Clock
	ResurfaceAfter time.Duration
	Tokens         TokenVerifier
	Logger         zerolog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func NewHub(backend Backend, lookup func(id string) (models.Occurrence, error), clock service.Clock, logger zerolog.Logger) *Hub {
	return &Hub{
		Backend:        backend,
		Lookup:         lookup,
		Clock:          clock,
		ResurfaceAfter: presenter.DefaultResurfaceAfter,
		Logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: map[*session]struct{}{},
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		_ = s.conn.Close()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	responderID := q.Get("responder_id")
	admin, _ := strconv.ParseBool(q.Get("admin"))
	if h.Tokens != nil {
		id, err := h.Tokens.Verify(auth.FromRequest(r))
		if err != nil {
			http.Error(w, "valid token required", http.StatusUnauthorized)
			return
		}
		responderID, admin = id.ResponderID, id.Admin
	}
	if responderID == "" && !admin {
		http.Error(w, "responder_id is required", http.StatusBadRequest)
		return
	}

	events, unsubscribe := h.Backend.Subscribe(64)
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Str("responder_id", responderID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		conn:        conn,
		responderID: responderID,
		admin:       admin,
		logger:      h.Logger.With().Str("responder_id", responderID).Bool("admin", admin).Logger(),
		wake:        make(chan struct{}, 1),
	}
	if responderID != "" {
		s.p = presenter.New(responderID, h.Backend, h.Clock, s.logger)
		if h.ResurfaceAfter > 0 {
			s.p.ResurfaceAfter = h.ResurfaceAfter
		}
		pending, err := h.Backend.Pending(ctx, responderID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not load pending calls")
		}
		s.p.Seed(pending, h.Lookup)
	}

	h.add(s)
	defer h.remove(s)

	s.logger.Info().Msg("websocket session opened")
	s.render()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pump(ctx, events)
	}()

	s.readLoop(ctx)
	cancel()
	<-done
	s.logger.Info().Msg("websocket session closed")
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.WebsocketSessions.Inc()
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	metrics.WebsocketSessions.Dec()
}

type session struct {
	conn        *websocket.Conn
	responderID string
	admin       bool
	p           *presenter.Presenter
	logger      zerolog.Logger
	wake        chan struct{}

	mu      sync.Mutex
	showing string
}

func (s *session) readLoop(ctx context.Context) {
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(Envelope{Type: MsgError, Payload: errorPayload{Code: "VALIDATION_ERROR", Message: "invalid message"}})
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *session) handle(ctx context.Context, msg ClientMessage) {
	if msg.Type == ClientPing {
		s.send(Envelope{Type: MsgPong})
		return
	}
	if s.p == nil {
		s.send(Envelope{Type: MsgError, Payload: errorPayload{Code: "VALIDATION_ERROR", Message: "session has no responder"}})
		return
	}

	var err error
	switch msg.Type {
	case ClientAccept:
		var occ models.Occurrence
		occ, err = s.p.Accept(ctx)
		if err == nil {
			s.send(Envelope{Type: MsgAccepted, Payload: occ})
		}
	case ClientReject:
		err = s.p.Reject(ctx)
	case ClientDismiss:
		err = s.p.Dismiss()
	default:
		s.send(Envelope{Type: MsgError, Payload: errorPayload{Code: "VALIDATION_ERROR", Message: "unknown message type " + msg.Type}})
		return
	}
	if err != nil {
		code := service.ErrorCode(err)
		if errors.Is(err, presenter.ErrNothingShown) {
			code = "NOTHING_SHOWN"
		}
		s.send(Envelope{Type: MsgError, Payload: errorPayload{Code: code, Message: err.Error()}})
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump forwards dispatcher events, re-surfaces dismissed calls and keeps the
// connection alive.
func (s *session) pump(ctx context.Context, events <-chan service.Event) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	resurface := time.NewTimer(time.Hour)
	defer resurface.Stop()
	s.schedule(resurface)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.admin && ev.Type == service.EventEscalated {
				s.send(Envelope{Type: MsgEscalation, Payload: escalationPayload(ev)})
			}
			if s.p != nil && s.p.Handle(ev) {
				s.render()
				s.schedule(resurface)
			}
		case <-s.wake:
			s.render()
			s.schedule(resurface)
		case <-resurface.C:
			s.render()
			s.schedule(resurface)
		case <-ping.C:
			s.mu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *session) schedule(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	wait := time.Hour
	if s.p != nil {
		if next, ok := s.p.NextResurface(); ok {
			wait = next + 100*time.Millisecond
		}
	}
	t.Reset(wait)
}

// render pushes notices and the call on screen, closing the screen when the
// last call went away. Only the pump goroutine renders once it is running.
func (s *session) render() {
	if s.p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.p.Current()
	notices := s.p.Notices()
	for _, n := range notices {
		s.write(Envelope{Type: MsgNotice, Payload: n})
	}
	switch {
	case ok:
		s.showing = view.Call.ID
		s.write(Envelope{Type: MsgOpenEmergency, Payload: emergencyPayload(view)})
	case s.showing != "":
		s.write(Envelope{Type: MsgCloseEmergency, Payload: map[string]string{"call_id": s.showing}})
		s.showing = ""
	}
}

func (s *session) send(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(env)
}

// write must be called with mu held.
func (s *session) write(env Envelope) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(env); err != nil {
		s.logger.Debug().Err(err).Str("type", env.Type).Msg("websocket write failed")
	}
}
