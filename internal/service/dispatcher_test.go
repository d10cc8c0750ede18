package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
)

func responder(id string) models.Responder {
	return models.Responder{ID: id, Name: "Responder " + id, Role: models.RoleSocorrista, Available: true}
}

func newTestDispatcher(t *testing.T, roster ...models.Responder) (*Dispatcher, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewOccurrenceStore(nil, zerolog.Nop())
	store.Now = clock.Now
	d := NewDispatcher(store, clock, zerolog.Nop())
	seq := 0
	d.NewID = func() string {
		seq++
		return fmt.Sprintf("call-%d", seq)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)

	if err := d.SetResponders(ctx, roster); err != nil {
		t.Fatalf("set responders: %v", err)
	}
	return d, clock
}

func openChestPain(t *testing.T, d *Dispatcher) (models.Occurrence, models.IncomingCall) {
	t.Helper()
	occ, call, err := d.Open(context.Background(), CreateRequest{
		RequesterName: "Ana",
		Symptoms:      []models.SymptomTag{models.SymptomDorPeito, models.SymptomDificuldadeRespirar},
		PeopleCount:   models.PeopleOne,
		LocationName:  "Bloco B",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if call == nil {
		t.Fatalf("expected a call to be offered")
	}
	return occ, *call
}

func pendingFor(t *testing.T, d *Dispatcher, responderID string) models.IncomingCall {
	t.Helper()
	calls, err := d.Pending(context.Background(), responderID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one pending call for %s, got %d", responderID, len(calls))
	}
	return calls[0]
}

func TestDispatcherEndToEndRedirects(t *testing.T) {
	d, clock := newTestDispatcher(t, responder("R1"), responder("R2"), responder("R3"))
	ctx := context.Background()
	events, unsubscribe := d.Subscribe(32)
	defer unsubscribe()

	occ, first := openChestPain(t, d)
	if occ.Type != models.TypeEmergencia || occ.Priority != models.PriorityCritica {
		t.Fatalf("expected emergencia/critica, got %s/%s", occ.Type, occ.Priority)
	}
	if occ.Status != models.StatusTriagem {
		t.Fatalf("expected triagem after dispatch, got %s", occ.Status)
	}
	if first.ResponderID != "R1" || len(first.AttemptedResponderIDs) != 0 {
		t.Fatalf("expected first offer to R1 with empty history, got %+v", first)
	}
	if !first.ExpiresAt.Equal(first.CreatedAt.Add(90 * time.Second)) {
		t.Fatalf("expected 90s window, got %s", first.ExpiresAt.Sub(first.CreatedAt))
	}

	clock.Advance(89 * time.Second)
	if _, err := d.Call(ctx, first.ID); err != nil {
		t.Fatalf("expected call still pending before 90s: %v", err)
	}
	clock.Advance(time.Second)

	second := pendingFor(t, d, "R2")
	if second.Reason != models.ReasonNoResponse {
		t.Fatalf("expected no_response redirect, got %q", second.Reason)
	}
	if fmt.Sprint(second.AttemptedResponderIDs) != "[R1]" {
		t.Fatalf("expected attempted [R1], got %v", second.AttemptedResponderIDs)
	}
	if !second.ExpiresAt.Equal(clock.Now().Add(90 * time.Second)) {
		t.Fatalf("expected a fresh 90s window for the redirect")
	}

	third, err := d.Reject(ctx, second.ID, "R2")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if third.ResponderID != "R3" || fmt.Sprint(third.AttemptedResponderIDs) != "[R1 R2]" {
		t.Fatalf("expected R3 with attempted [R1 R2], got %+v", third)
	}

	accepted, err := d.Accept(ctx, third.ID, "R3")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != models.StatusEmAtendimento || accepted.AssignedTo != "R3" {
		t.Fatalf("expected em_atendimento assigned to R3, got %s/%s", accepted.Status, accepted.AssignedTo)
	}

	var sawExpired bool
	for len(events) > 0 {
		ev := <-events
		if ev.Type == EventCallExpired && ev.ResponderID == "R1" && ev.Call.State == models.CallExpired {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Fatalf("expected a call_expired event for R1")
	}
}

func TestDispatcherCancelInvalidatesPendingCall(t *testing.T) {
	d, clock := newTestDispatcher(t, responder("R1"), responder("R2"))
	ctx := context.Background()
	occ, call := openChestPain(t, d)

	cancelled, err := d.Cancel(ctx, occ.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.StatusCancelado {
		t.Fatalf("expected cancelado, got %s", cancelled.Status)
	}

	if _, err := d.Accept(ctx, call.ID, "R1"); !errors.Is(err, ErrOccurrenceCancelled) {
		t.Fatalf("expected ErrOccurrenceCancelled, got %v", err)
	}
	if _, err := d.Reject(ctx, call.ID, "R1"); !errors.Is(err, ErrOccurrenceCancelled) {
		t.Fatalf("expected ErrOccurrenceCancelled on reject, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	calls, _ := d.Pending(ctx, "")
	if len(calls) != 0 {
		t.Fatalf("expected no redirect after cancellation, got %+v", calls)
	}
	if _, err := d.UpdateOccurrence(ctx, occ.ID, OccurrenceChanges{Description: strPtr("x")}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal occurrence to refuse updates, got %v", err)
	}
}

func TestDispatcherAcceptIsExactlyOnce(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"))
	_, call := openChestPain(t, d)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Accept(context.Background(), call.ID, "R1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrCallNotPending):
				conflicts++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", successes, conflicts)
	}
}

func TestDispatcherTimeoutAfterResolutionIsNoop(t *testing.T) {
	d, clock := newTestDispatcher(t, responder("R1"), responder("R2"))
	ctx := context.Background()
	_, call := openChestPain(t, d)

	if _, err := d.Accept(ctx, call.ID, "R1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	next, err := d.Timeout(ctx, call.ID)
	if err != nil || next != nil {
		t.Fatalf("expected no-op timeout, got %+v, %v", next, err)
	}
	clock.Advance(90 * time.Second)
	calls, _ := d.Pending(ctx, "")
	if len(calls) != 0 {
		t.Fatalf("expected no pending calls, got %+v", calls)
	}
}

func TestDispatcherForgetsOldResolvedCalls(t *testing.T) {
	d, clock := newTestDispatcher(t, responder("R1"))
	ctx := context.Background()

	_, first := openChestPain(t, d)
	if _, err := d.Accept(ctx, first.ID, "R1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := d.Accept(ctx, first.ID, "R1"); !errors.Is(err, ErrCallNotPending) {
		t.Fatalf("expected ErrCallNotPending right after accept, got %v", err)
	}

	clock.Advance(DefaultResolvedRetention + time.Minute)
	_, second := openChestPain(t, d)
	if _, err := d.Accept(ctx, second.ID, "R1"); err != nil {
		t.Fatalf("accept second: %v", err)
	}

	if _, err := d.Accept(ctx, first.ID, "R1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old call to be forgotten, got %v", err)
	}
	if _, err := d.Accept(ctx, second.ID, "R1"); !errors.Is(err, ErrCallNotPending) {
		t.Fatalf("expected recent call to still conflict, got %v", err)
	}
}

func TestDispatcherRestartKeepsAttempted(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"), responder("R2"), responder("R3"))
	ctx := context.Background()

	occ, call := openChestPain(t, d)
	if _, err := d.Reject(ctx, call.ID, call.ResponderID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	snapshot, err := d.Store.Get(occ.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(snapshot.AttemptedResponderIDs) != 1 || snapshot.AttemptedResponderIDs[0] != call.ResponderID {
		t.Fatalf("expected attempted list on the occurrence, got %v", snapshot.AttemptedResponderIDs)
	}

	restarted, _ := newTestDispatcher(t, responder("R1"), responder("R2"), responder("R3"))
	restarted.Store.Restore([]models.Occurrence{snapshot})
	next, err := restarted.Dispatch(ctx, occ.ID, nil)
	if err != nil {
		t.Fatalf("dispatch after restart: %v", err)
	}
	if next.ResponderID == call.ResponderID {
		t.Fatalf("responder %s who refused was offered the call again", call.ResponderID)
	}
	if len(next.AttemptedResponderIDs) != 1 || next.AttemptedResponderIDs[0] != call.ResponderID {
		t.Fatalf("expected attempted list carried over, got %v", next.AttemptedResponderIDs)
	}
}

func TestDispatcherRejectsWrongResponder(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"), responder("R2"))
	_, call := openChestPain(t, d)

	if _, err := d.Accept(context.Background(), call.ID, "R2"); !errors.Is(err, ErrCallNotPending) {
		t.Fatalf("expected ErrCallNotPending, got %v", err)
	}
	if _, err := d.Accept(context.Background(), "unknown", "R1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatcherEscalatesAndRetriesWithNewResponder(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"), responder("R2"))
	ctx := context.Background()
	events, unsubscribe := d.Subscribe(32)
	defer unsubscribe()

	occ, first := openChestPain(t, d)
	second, err := d.Reject(ctx, first.ID, first.ResponderID)
	if err != nil {
		t.Fatalf("first reject: %v", err)
	}
	next, err := d.Reject(ctx, second.ID, second.ResponderID)
	if !errors.Is(err, ErrNoEligibleResponder) || next != nil {
		t.Fatalf("expected ErrNoEligibleResponder, got %+v, %v", next, err)
	}

	got, _ := d.Store.Get(occ.ID)
	if got.Status != models.StatusTriagem {
		t.Fatalf("expected occurrence kept in triagem, got %s", got.Status)
	}

	var escalated bool
	for len(events) > 0 {
		if ev := <-events; ev.Type == EventEscalated && ev.ReasonCode == ReasonAllAttempted {
			escalated = true
		}
	}
	if !escalated {
		t.Fatalf("expected dispatch_escalated event")
	}

	// a rejected responder becoming available again must not be re-offered
	if _, err := d.SetAvailability(ctx, "R1", true); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if calls, _ := d.Pending(ctx, ""); len(calls) != 0 {
		t.Fatalf("expected no re-offer to attempted responders, got %+v", calls)
	}

	if err := d.SetResponders(ctx, []models.Responder{responder("R1"), responder("R2"), responder("R3")}); err != nil {
		t.Fatalf("set responders: %v", err)
	}
	retry := pendingFor(t, d, "R3")
	if fmt.Sprint(retry.AttemptedResponderIDs) != "[R1 R2]" {
		t.Fatalf("expected history carried into retry, got %v", retry.AttemptedResponderIDs)
	}
}

func TestDispatcherAttemptedNeverShrinks(t *testing.T) {
	roster := []models.Responder{responder("A"), responder("B"), responder("C"), responder("D")}
	d, clock := newTestDispatcher(t, roster...)
	ctx := context.Background()
	_, call := openChestPain(t, d)

	seen := map[string]bool{call.ResponderID: true}
	prev := call.AttemptedResponderIDs
	for i := 0; i < 3; i++ {
		var next models.IncomingCall
		if i%2 == 0 {
			n, err := d.Reject(ctx, call.ID, call.ResponderID)
			if err != nil {
				t.Fatalf("reject: %v", err)
			}
			next = *n
		} else {
			clock.Advance(90 * time.Second)
			calls, _ := d.Pending(ctx, "")
			if len(calls) != 1 {
				t.Fatalf("expected one pending call, got %d", len(calls))
			}
			next = calls[0]
		}
		if len(next.AttemptedResponderIDs) != len(prev)+1 {
			t.Fatalf("expected attempted to grow by one, got %v after %v", next.AttemptedResponderIDs, prev)
		}
		for j, id := range prev {
			if next.AttemptedResponderIDs[j] != id {
				t.Fatalf("attempted history rewritten: %v -> %v", prev, next.AttemptedResponderIDs)
			}
		}
		if seen[next.ResponderID] {
			t.Fatalf("responder %s offered the same occurrence twice", next.ResponderID)
		}
		seen[next.ResponderID] = true
		prev = next.AttemptedResponderIDs
		call = next
	}
}

func TestDispatcherAssignByOperator(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"))
	ctx := context.Background()
	occ, call := openChestPain(t, d)

	assigned, err := d.Assign(ctx, occ.ID, "R1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedTo != "R1" || assigned.Status != models.StatusEmAtendimento {
		t.Fatalf("unexpected occurrence %+v", assigned)
	}
	if _, err := d.Accept(ctx, call.ID, "R1"); !errors.Is(err, ErrCallNotPending) {
		t.Fatalf("expected superseded call to be not pending, got %v", err)
	}
	if _, err := d.Assign(ctx, occ.ID, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown responder, got %v", err)
	}
}

func TestDispatcherSubmitIgnoresDuplicates(t *testing.T) {
	d, _ := newTestDispatcher(t, responder("R1"), responder("R2"))
	ctx := context.Background()
	inbound := models.Occurrence{
		ID:          "42",
		Symptoms:    []models.SymptomTag{models.SymptomFebreAlta},
		PeopleCount: models.PeopleOne,
	}

	occ, call, created, err := d.Submit(ctx, inbound, []string{"R1"})
	if err != nil || !created || call == nil {
		t.Fatalf("expected created occurrence with call, got %v %v %v", created, call, err)
	}
	if occ.Priority != models.PriorityBaixa {
		t.Fatalf("expected classifier to fill priority, got %s", occ.Priority)
	}
	if call.ResponderID != "R2" || fmt.Sprint(call.AttemptedResponderIDs) != "[R1]" {
		t.Fatalf("expected attempted list honoured, got %+v", call)
	}

	_, again, created, err := d.Submit(ctx, inbound, nil)
	if err != nil || created || again != nil {
		t.Fatalf("expected duplicate to be ignored, got %v %v %v", created, again, err)
	}
}

func strPtr(s string) *string { return &s }
