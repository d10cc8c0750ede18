// Package presenter keeps the incoming-call view of a single responder: which
// call is on screen, which ones are queued behind it, and the notices the
// responder should see when a call is taken away from them.
package presenter

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

const DefaultResurfaceAfter = 15 * time.Second

var ErrNothingShown = errors.New("no call on screen")

// Actions resolves calls on behalf of the responder.
type Actions interface {
	Accept(ctx context.Context, callID, responderID string) (models.Occurrence, error)
	Reject(ctx context.Context, callID, responderID string) (*models.IncomingCall, error)
}

type NoticeKind string

const (
	NoticeRedirected NoticeKind = "redirected"
	NoticeConflict   NoticeKind = "conflict"
	NoticeCancelled  NoticeKind = "cancelled"
	NoticeAccepted   NoticeKind = "accepted"
)

type Notice struct {
	Kind         NoticeKind `json:"kind"`
	CallID       string     `json:"call_id"`
	OccurrenceID string     `json:"occurrence_id"`
	Message      string     `json:"message"`
	At           time.Time  `json:"at"`
}

// View is what the responder has on screen.
type View struct {
	Call       models.IncomingCall `json:"call"`
	Occurrence models.Occurrence   `json:"occurrence"`
	Remaining  time.Duration       `json:"remaining"`
	Queued     int                 `json:"queued"`
}

type entry struct {
	call        models.IncomingCall
	occurrence  models.Occurrence
	dismissed   bool
	dismissedAt time.Time
}

type Presenter struct {
	ResponderID    string
	Actions        Actions
	Clock          service.Clock
	ResurfaceAfter time.Duration
	Logger         zerolog.Logger

	mu      sync.Mutex
	calls   map[string]*entry
	notices []Notice
}

func New(responderID string, actions Actions, clock service.Clock, logger zerolog.Logger) *Presenter {
	if clock == nil {
		clock = service.SystemClock
	}
	return &Presenter{
		ResponderID:    responderID,
		Actions:        actions,
		Clock:          clock,
		ResurfaceAfter: DefaultResurfaceAfter,
		Logger:         logger,
		calls:          map[string]*entry{},
	}
}

// Seed loads calls that were already pending before the presenter subscribed.
func (p *Presenter) Seed(calls []models.IncomingCall, lookup func(id string) (models.Occurrence, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range calls {
		if c.ResponderID != p.ResponderID || c.State != models.CallPending {
			continue
		}
		occ, err := lookup(c.OccurrenceID)
		if err != nil {
			continue
		}
		p.calls[c.ID] = &entry{call: c.Clone(), occurrence: occ}
	}
}

// Run feeds dispatcher events into the presenter until ctx is done or the
// channel closes. onChange is called after every event that touched this
// responder.
func (p *Presenter) Run(ctx context.Context, events <-chan service.Event, onChange func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if p.Handle(ev) && onChange != nil {
				onChange()
			}
		}
	}
}

// Handle applies a dispatcher event and reports whether this responder's view
// may have changed.
func (p *Presenter) Handle(ev service.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case service.EventCallOffered:
		if ev.ResponderID != p.ResponderID {
			return false
		}
		p.calls[ev.Call.ID] = &entry{call: ev.Call.Clone(), occurrence: ev.Occurrence}
		return true
	case service.EventCallExpired:
		if _, ok := p.calls[ev.Call.ID]; !ok {
			return false
		}
		delete(p.calls, ev.Call.ID)
		p.notify(NoticeRedirected, ev.Call, "Chamado redirecionado para outro socorrista por falta de resposta")
		return true
	case service.EventCallCancelled:
		if _, ok := p.calls[ev.Call.ID]; !ok {
			return false
		}
		delete(p.calls, ev.Call.ID)
		msg := "Chamado encerrado antes do atendimento"
		if ev.Occurrence.Status == models.StatusCancelado {
			msg = "Ocorrência cancelada pelo solicitante"
		}
		p.notify(NoticeCancelled, ev.Call, msg)
		return true
	case service.EventCallAccepted, service.EventCallRedirected:
		if _, ok := p.calls[ev.Call.ID]; !ok {
			return false
		}
		delete(p.calls, ev.Call.ID)
		return true
	}
	return false
}

// Current returns the call on screen: the most recently created call that is
// not dismissed. Dismissed calls come back once ResurfaceAfter has elapsed.
func (p *Presenter) Current() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, visible := p.current()
	if e == nil {
		return View{}, false
	}
	remaining := e.call.ExpiresAt.Sub(p.Clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return View{
		Call:       e.call.Clone(),
		Occurrence: e.occurrence,
		Remaining:  remaining,
		Queued:     visible - 1,
	}, true
}

// current must be called with mu held.
func (p *Presenter) current() (*entry, int) {
	now := p.Clock.Now()
	var visible []*entry
	for _, e := range p.calls {
		if e.dismissed && now.Sub(e.dismissedAt) >= p.ResurfaceAfter {
			e.dismissed = false
		}
		if !e.dismissed {
			visible = append(visible, e)
		}
	}
	if len(visible) == 0 {
		return nil, 0
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].call.CreatedAt.Equal(visible[j].call.CreatedAt) {
			return visible[i].call.ID > visible[j].call.ID
		}
		return visible[i].call.CreatedAt.After(visible[j].call.CreatedAt)
	})
	return visible[0], len(visible)
}

// NextResurface reports how long until the earliest dismissed call comes back.
func (p *Presenter) NextResurface() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.Clock.Now()
	var (
		next  time.Duration
		found bool
	)
	for _, e := range p.calls {
		if !e.dismissed {
			continue
		}
		wait := p.ResurfaceAfter - now.Sub(e.dismissedAt)
		if wait < 0 {
			wait = 0
		}
		if !found || wait < next {
			next, found = wait, true
		}
	}
	return next, found
}

// Dismiss hides the call on screen without resolving it.
func (p *Presenter) Dismiss() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, _ := p.current()
	if e == nil {
		return ErrNothingShown
	}
	e.dismissed = true
	e.dismissedAt = p.Clock.Now()
	return nil
}

// Accept takes the call on screen. Losing a race leaves a conflict notice.
func (p *Presenter) Accept(ctx context.Context) (models.Occurrence, error) {
	call, err := p.shown()
	if err != nil {
		return models.Occurrence{}, err
	}
	occ, err := p.Actions.Accept(ctx, call.ID, p.ResponderID)
	p.settle(call, err)
	if err == nil {
		p.mu.Lock()
		p.notify(NoticeAccepted, call, "Atendimento assumido")
		p.mu.Unlock()
	}
	return occ, err
}

// Reject declines the call on screen; the dispatcher redirects it.
func (p *Presenter) Reject(ctx context.Context) error {
	call, err := p.shown()
	if err != nil {
		return err
	}
	_, err = p.Actions.Reject(ctx, call.ID, p.ResponderID)
	if errors.Is(err, service.ErrNoEligibleResponder) {
		err = nil
	}
	p.settle(call, err)
	return err
}

// Notices returns and clears the pending notices.
func (p *Presenter) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.notices
	p.notices = nil
	return out
}

func (p *Presenter) shown() (models.IncomingCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, _ := p.current()
	if e == nil {
		return models.IncomingCall{}, ErrNothingShown
	}
	return e.call.Clone(), nil
}

// settle drops the call from the view once the dispatcher has answered.
func (p *Presenter) settle(call models.IncomingCall, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case err == nil:
		delete(p.calls, call.ID)
	case errors.Is(err, service.ErrOccurrenceCancelled):
		delete(p.calls, call.ID)
		p.notify(NoticeCancelled, call, "Ocorrência cancelada pelo solicitante")
	case errors.Is(err, service.ErrCallNotPending), errors.Is(err, service.ErrNotFound):
		delete(p.calls, call.ID)
		p.notify(NoticeConflict, call, "Chamado não está mais disponível, já foi assumido ou redirecionado")
	default:
		p.Logger.Error().Err(err).Str("call_id", call.ID).Str("responder_id", p.ResponderID).Msg("call action failed")
	}
}

// notify must be called with mu held.
func (p *Presenter) notify(kind NoticeKind, call models.IncomingCall, msg string) {
	p.notices = append(p.notices, Notice{
		Kind:         kind,
		CallID:       call.ID,
		OccurrenceID: call.OccurrenceID,
		Message:      msg,
		At:           p.Clock.Now(),
	})
}
