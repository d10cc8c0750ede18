package presenter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) AfterFunc(d time.Duration, f func()) service.Timer {
	return time.AfterFunc(time.Hour, func() {})
}

type stubActions struct {
	acceptErr error
	rejectErr error
	accepted  []string
	rejected  []string
}

func (a *stubActions) Accept(ctx context.Context, callID, responderID string) (models.Occurrence, error) {
	a.accepted = append(a.accepted, callID)
	if a.acceptErr != nil {
		return models.Occurrence{}, a.acceptErr
	}
	return models.Occurrence{ID: "occ", Status: models.StatusEmAtendimento, AssignedTo: responderID}, nil
}

func (a *stubActions) Reject(ctx context.Context, callID, responderID string) (*models.IncomingCall, error) {
	a.rejected = append(a.rejected, callID)
	return nil, a.rejectErr
}

func offer(clock *stubClock, id, responderID string, age time.Duration) service.Event {
	created := clock.now.Add(-age)
	return service.Event{
		Type:        service.EventCallOffered,
		ResponderID: responderID,
		Call: models.IncomingCall{
			ID:           id,
			OccurrenceID: "occ-" + id,
			ResponderID:  responderID,
			State:        models.CallPending,
			CreatedAt:    created,
			ExpiresAt:    created.Add(90 * time.Second),
		},
		Occurrence: models.Occurrence{ID: "occ-" + id, Status: models.StatusTriagem},
	}
}

func newTestPresenter(actions Actions) (*Presenter, *stubClock) {
	clock := &stubClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	return New("R1", actions, clock, zerolog.Nop()), clock
}

func TestPresenterShowsMostRecentFirst(t *testing.T) {
	p, clock := newTestPresenter(&stubActions{})
	p.Handle(offer(clock, "old", "R1", 30*time.Second))
	p.Handle(offer(clock, "new", "R1", 5*time.Second))
	if p.Handle(offer(clock, "other", "R2", 0)) {
		t.Fatalf("expected calls for other responders to be ignored")
	}

	view, ok := p.Current()
	if !ok || view.Call.ID != "new" {
		t.Fatalf("expected newest call on screen, got %+v", view)
	}
	if view.Queued != 1 {
		t.Fatalf("expected one queued call, got %d", view.Queued)
	}
	if view.Remaining != 85*time.Second {
		t.Fatalf("expected 85s remaining, got %s", view.Remaining)
	}
}

func TestPresenterDismissResurfaces(t *testing.T) {
	p, clock := newTestPresenter(&stubActions{})
	p.Handle(offer(clock, "c1", "R1", 0))

	if err := p.Dismiss(); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected dismissed call hidden")
	}
	wait, ok := p.NextResurface()
	if !ok || wait != DefaultResurfaceAfter {
		t.Fatalf("expected resurface in %s, got %s", DefaultResurfaceAfter, wait)
	}

	clock.now = clock.now.Add(DefaultResurfaceAfter)
	view, ok := p.Current()
	if !ok || view.Call.ID != "c1" {
		t.Fatalf("expected dismissed call to come back while pending")
	}
	if err := p.Dismiss(); err != nil {
		t.Fatalf("second dismiss: %v", err)
	}
	if err := p.Dismiss(); err != ErrNothingShown {
		t.Fatalf("expected ErrNothingShown, got %v", err)
	}
}

func TestPresenterExpiryLeavesRedirectNotice(t *testing.T) {
	p, clock := newTestPresenter(&stubActions{})
	ev := offer(clock, "c1", "R1", 0)
	p.Handle(ev)

	expired := ev
	expired.Type = service.EventCallExpired
	expired.Call.State = models.CallExpired
	if !p.Handle(expired) {
		t.Fatalf("expected expiry to change the view")
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected expired call removed")
	}
	notices := p.Notices()
	if len(notices) != 1 || notices[0].Kind != NoticeRedirected {
		t.Fatalf("expected redirected notice, got %+v", notices)
	}
	if len(p.Notices()) != 0 {
		t.Fatalf("expected notices drained")
	}
}

func TestPresenterAcceptConflict(t *testing.T) {
	actions := &stubActions{acceptErr: fmt.Errorf("%w: call c1 is accepted", service.ErrCallNotPending)}
	p, clock := newTestPresenter(actions)
	p.Handle(offer(clock, "c1", "R1", 0))

	if _, err := p.Accept(context.Background()); err == nil {
		t.Fatalf("expected conflict error")
	}
	notices := p.Notices()
	if len(notices) != 1 || notices[0].Kind != NoticeConflict {
		t.Fatalf("expected conflict notice, got %+v", notices)
	}
	if _, ok := p.Current(); ok {
		t.Fatalf("expected lost call removed from screen")
	}
}

func TestPresenterAcceptAndReject(t *testing.T) {
	actions := &stubActions{rejectErr: fmt.Errorf("%w: ALL_RESPONDERS_ATTEMPTED", service.ErrNoEligibleResponder)}
	p, clock := newTestPresenter(actions)
	p.Handle(offer(clock, "c1", "R1", 10*time.Second))
	p.Handle(offer(clock, "c2", "R1", 0))

	if err := p.Reject(context.Background()); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(actions.rejected) != 1 || actions.rejected[0] != "c2" {
		t.Fatalf("expected newest call rejected, got %v", actions.rejected)
	}
	occ, err := p.Accept(context.Background())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if occ.AssignedTo != "R1" || actions.accepted[0] != "c1" {
		t.Fatalf("unexpected accept result %+v %v", occ, actions.accepted)
	}
	if _, err := p.Accept(context.Background()); err != ErrNothingShown {
		t.Fatalf("expected ErrNothingShown, got %v", err)
	}
}
