package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/metrics"
	"github.com/sos_unifio/backend/internal/models"
)

const DefaultCallTimeout = 90 * time.Second

// DefaultResolvedRetention is how long a finished call still answers late
// actions with a conflict instead of not found.
const DefaultResolvedRetention = time.Hour

// Dispatcher offers occurrences to responders as timed incoming calls and
// redirects refused or unanswered calls to the next eligible responder.
//
// Every mutation runs on a single loop goroutine started by Run: API actions,
// countdown expiries and inbound realtime events are all commands on the same
// queue, so no two handlers interleave on the same occurrence or call.
type Dispatcher struct {
	Store             *OccurrenceStore
	Clock             Clock
	Logger            zerolog.Logger
	CallTimeout       time.Duration
	ResolvedRetention time.Duration
	NewID             func() string

	cmds    chan func()
	stopped chan struct{}

	// owned by the loop goroutine
	roster    []models.Responder
	locations map[string]Point
	pending   map[string]*pendingCall
	resolved  map[string]resolvedCall
	finished  []finishedCall
	lineages  map[string]*lineage

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

type pendingCall struct {
	call  models.IncomingCall
	timer Timer
}

type resolvedCall struct {
	occurrenceID string
	state        models.CallState
}

// finishedCall orders resolved entries by resolution time for pruning.
type finishedCall struct {
	id string
	at time.Time
}

// lineage tracks the dispatch history of one occurrence until it is resolved.
// attempted only ever grows.
type lineage struct {
	attempted []string
	callID    string
	escalated bool
}

func NewDispatcher(store *OccurrenceStore, clock Clock, logger zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = SystemClock
	}
	return &Dispatcher{
		Store:             store,
		Clock:             clock,
		Logger:            logger,
		CallTimeout:       DefaultCallTimeout,
		ResolvedRetention: DefaultResolvedRetention,
		NewID:             uuid.NewString,
		cmds:              make(chan func()),
		stopped:           make(chan struct{}),
		locations:         map[string]Point{},
		pending:           map[string]*pendingCall{},
		resolved:          map[string]resolvedCall{},
		lineages:          map[string]*lineage{},
		subs:              map[int]chan Event{},
	}
}

// Run executes queued commands until ctx is done. Pending countdowns are
// stopped on exit.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, pc := range d.pending {
				pc.timer.Stop()
			}
			return
		case fn := <-d.cmds:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (d *Dispatcher) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case d.cmds <- cmd:
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Subscribe returns a channel receiving every event published after the call.
// Delivery never blocks the loop: when the buffer is full the event is dropped.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
		})
	}
}

func (d *Dispatcher) publish(ev Event) {
	ev.At = d.Clock.Now()
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for id, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			d.Logger.Warn().Int("subscriber", id).Str("event", string(ev.Type)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Open creates an occurrence from a request and dispatches it. The occurrence
// is returned even when no responder could be offered the call.
func (d *Dispatcher) Open(ctx context.Context, req CreateRequest) (models.Occurrence, *models.IncomingCall, error) {
	var (
		occ  models.Occurrence
		call *models.IncomingCall
		err  error
	)
	if doErr := d.do(ctx, func() {
		occ, err = d.Store.Create(ctx, req)
		if err != nil {
			return
		}
		var c models.IncomingCall
		c, err = d.dispatch(ctx, occ.ID, nil, models.ReasonNone)
		if err == nil {
			call = &c
		}
		if latest, getErr := d.Store.Get(occ.ID); getErr == nil {
			occ = latest
		}
	}); doErr != nil {
		return models.Occurrence{}, nil, doErr
	}
	return occ, call, err
}

// Submit imports an occurrence received from the realtime backend or the
// local simulator and dispatches it, carrying attempted responders forward.
// A repeated event for a known id is ignored and reports created=false.
func (d *Dispatcher) Submit(ctx context.Context, o models.Occurrence, attempted []string) (models.Occurrence, *models.IncomingCall, bool, error) {
	var (
		occ     models.Occurrence
		call    *models.IncomingCall
		created bool
		err     error
	)
	if doErr := d.do(ctx, func() {
		occ, created, err = d.Store.Import(ctx, o)
		if err != nil || !created {
			return
		}
		if occ.Status.Terminal() || !occ.Status.Before(models.StatusEmAtendimento) {
			return
		}
		var c models.IncomingCall
		c, err = d.dispatch(ctx, occ.ID, attempted, models.ReasonNone)
		if err == nil {
			call = &c
		}
		if latest, getErr := d.Store.Get(occ.ID); getErr == nil {
			occ = latest
		}
	}); doErr != nil {
		return models.Occurrence{}, nil, false, doErr
	}
	return occ, call, created, err
}

// Dispatch offers the occurrence to the next eligible responder outside
// excluded. excluded is merged into the occurrence's attempted list, which
// never shrinks. ErrNoEligibleResponder means the occurrence was escalated.
func (d *Dispatcher) Dispatch(ctx context.Context, occurrenceID string, excluded []string) (models.IncomingCall, error) {
	var (
		call models.IncomingCall
		err  error
	)
	if doErr := d.do(ctx, func() {
		call, err = d.dispatch(ctx, occurrenceID, excluded, models.ReasonNone)
	}); doErr != nil {
		return models.IncomingCall{}, doErr
	}
	return call, err
}

// Accept assigns the occurrence to the responder the call was offered to.
// Only one accept per call succeeds; the others get ErrCallNotPending, or
// ErrOccurrenceCancelled when the occurrence was cancelled meanwhile.
func (d *Dispatcher) Accept(ctx context.Context, callID, responderID string) (models.Occurrence, error) {
	var (
		occ models.Occurrence
		err error
	)
	if doErr := d.do(ctx, func() {
		occ, err = d.accept(ctx, callID, responderID)
	}); doErr != nil {
		return models.Occurrence{}, doErr
	}
	return occ, err
}

// Reject discards the call and redirects the occurrence to another responder.
// When the successor cannot be created the rejection still holds and the
// returned error wraps ErrNoEligibleResponder.
func (d *Dispatcher) Reject(ctx context.Context, callID, responderID string) (*models.IncomingCall, error) {
	var (
		next *models.IncomingCall
		err  error
	)
	if doErr := d.do(ctx, func() {
		pc, checkErr := d.pendingFor(callID, responderID)
		if checkErr != nil {
			err = checkErr
			return
		}
		d.resolve(pc, models.CallRejected)
		d.publish(Event{Type: EventCallRedirected, Call: d.finalCall(pc, models.CallRejected), Occurrence: d.occurrence(pc.call.OccurrenceID), ResponderID: responderID})
		next, err = d.redirect(ctx, pc.call, responderID, models.ReasonRejected)
	}); doErr != nil {
		return nil, doErr
	}
	return next, err
}

// Timeout expires a call that is still pending and redirects it. It is a
// no-op for calls already resolved.
func (d *Dispatcher) Timeout(ctx context.Context, callID string) (*models.IncomingCall, error) {
	var (
		next *models.IncomingCall
		err  error
	)
	if doErr := d.do(ctx, func() {
		next, err = d.expire(ctx, callID)
	}); doErr != nil {
		return nil, doErr
	}
	return next, err
}

// Cancel moves the occurrence to cancelado and invalidates its pending call.
func (d *Dispatcher) Cancel(ctx context.Context, occurrenceID string) (models.Occurrence, error) {
	status := models.StatusCancelado
	return d.UpdateOccurrence(ctx, occurrenceID, OccurrenceChanges{Status: &status})
}

// UpdateOccurrence applies changes through the loop. Once the occurrence
// leaves the triage phase its pending call is invalidated.
func (d *Dispatcher) UpdateOccurrence(ctx context.Context, occurrenceID string, changes OccurrenceChanges) (models.Occurrence, error) {
	var (
		occ models.Occurrence
		err error
	)
	if doErr := d.do(ctx, func() {
		occ, err = d.Store.Update(ctx, occurrenceID, changes)
		if err != nil {
			return
		}
		if !occ.Status.Before(models.StatusEmAtendimento) {
			d.invalidate(occ)
		}
	}); doErr != nil {
		return models.Occurrence{}, doErr
	}
	return occ, err
}

// Assign is the operator path for escalated occurrences: it hands the
// occurrence to a responder directly, bypassing the offer.
func (d *Dispatcher) Assign(ctx context.Context, occurrenceID, responderID string) (models.Occurrence, error) {
	var (
		occ models.Occurrence
		err error
	)
	if doErr := d.do(ctx, func() {
		if _, ok := d.responderIndex(responderID); !ok {
			err = fmt.Errorf("%w: responder %s", ErrNotFound, responderID)
			return
		}
		status := models.StatusEmAtendimento
		occ, err = d.Store.Update(ctx, occurrenceID, OccurrenceChanges{Status: &status, AssignedTo: &responderID})
		if err != nil {
			return
		}
		d.invalidate(occ)
		d.publish(Event{Type: EventAssigned, Occurrence: occ, ResponderID: responderID})
	}); doErr != nil {
		return models.Occurrence{}, doErr
	}
	return occ, err
}

// SetResponders replaces the roster and retries escalated occurrences.
func (d *Dispatcher) SetResponders(ctx context.Context, roster []models.Responder) error {
	return d.do(ctx, func() {
		d.roster = append([]models.Responder(nil), roster...)
		d.retryEscalated(ctx)
	})
}

// SetAvailability toggles a responder's availability. A responder becoming
// available is offered escalated occurrences it has not refused yet.
func (d *Dispatcher) SetAvailability(ctx context.Context, responderID string, available bool) (models.Responder, error) {
	var (
		out models.Responder
		err error
	)
	if doErr := d.do(ctx, func() {
		idx, ok := d.responderIndex(responderID)
		if !ok {
			err = fmt.Errorf("%w: responder %s", ErrNotFound, responderID)
			return
		}
		d.roster[idx].Available = available
		out = d.roster[idx]
		if available {
			d.retryEscalated(ctx)
		}
	}); doErr != nil {
		return models.Responder{}, doErr
	}
	return out, err
}

func (d *Dispatcher) SetLocations(ctx context.Context, locations []models.Location) error {
	return d.do(ctx, func() {
		d.locations = map[string]Point{}
		for _, l := range locations {
			if l.Lat != nil && l.Lon != nil {
				d.locations[l.ID] = Point{Lat: *l.Lat, Lon: *l.Lon}
			}
		}
	})
}

// Responders returns the roster with the current load of each responder.
func (d *Dispatcher) Responders(ctx context.Context) ([]models.Responder, error) {
	var out []models.Responder
	if err := d.do(ctx, func() {
		out = d.rosterWithLoad()
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Pending lists the calls waiting on a responder, most recent first. An empty
// responderID lists every pending call.
func (d *Dispatcher) Pending(ctx context.Context, responderID string) ([]models.IncomingCall, error) {
	var out []models.IncomingCall
	if err := d.do(ctx, func() {
		for _, pc := range d.pending {
			if responderID == "" || pc.call.ResponderID == responderID {
				out = append(out, pc.call.Clone())
			}
		}
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Call returns a pending call. Resolved calls report why they are gone.
func (d *Dispatcher) Call(ctx context.Context, callID string) (models.IncomingCall, error) {
	var (
		out models.IncomingCall
		err error
	)
	if doErr := d.do(ctx, func() {
		pc, ok := d.pending[callID]
		if !ok {
			err = d.notPending(callID)
			return
		}
		out = pc.call.Clone()
	}); doErr != nil {
		return models.IncomingCall{}, doErr
	}
	return out, err
}

// Attempted returns the responders already offered the occurrence in its
// current dispatch lineage.
func (d *Dispatcher) Attempted(ctx context.Context, occurrenceID string) ([]string, error) {
	var out []string
	if err := d.do(ctx, func() {
		if lin, ok := d.lineages[occurrenceID]; ok {
			out = append([]string{}, lin.attempted...)
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, occurrenceID string, excluded []string, reason models.RedirectReason) (models.IncomingCall, error) {
	occ, err := d.Store.Get(occurrenceID)
	if err != nil {
		return models.IncomingCall{}, err
	}
	if occ.Status == models.StatusCancelado {
		return models.IncomingCall{}, fmt.Errorf("%w: occurrence %s", ErrOccurrenceCancelled, occurrenceID)
	}
	if !occ.Status.Before(models.StatusEmAtendimento) {
		return models.IncomingCall{}, fmt.Errorf("%w: occurrence %s is %s", ErrInvalidTransition, occurrenceID, occ.Status)
	}

	lin := d.lineages[occurrenceID]
	if lin == nil {
		lin = &lineage{}
		// a triagem occurrence without a lineage was restored mid-dispatch
		if occ.Status == models.StatusTriagem {
			lin.attempted = mergeAttempted(nil, occ.AttemptedResponderIDs)
		}
		d.lineages[occurrenceID] = lin
	}
	if lin.callID != "" {
		return models.IncomingCall{}, fmt.Errorf("%w: occurrence %s already has pending call %s", ErrInvalidTransition, occurrenceID, lin.callID)
	}
	lin.attempted = mergeAttempted(lin.attempted, excluded)

	var changes OccurrenceChanges
	if occ.Status == models.StatusAberto {
		status := models.StatusTriagem
		changes.Status = &status
	}
	if !slices.Equal(occ.AttemptedResponderIDs, lin.attempted) {
		changes.Attempted = append([]string{}, lin.attempted...)
	}
	if changes.Status != nil || changes.Attempted != nil {
		if occ, err = d.Store.Update(ctx, occurrenceID, changes); err != nil {
			return models.IncomingCall{}, err
		}
	}

	elig := FilterEligibleResponders(d.rosterWithLoad(), lin.attempted)
	if len(elig.Eligible) == 0 {
		d.escalate(occ, lin, elig)
		return models.IncomingCall{}, fmt.Errorf("%w: %s", ErrNoEligibleResponder, elig.ReasonCode)
	}
	picked, _ := PickResponder(elig.Eligible, d.origin(occ))

	now := d.Clock.Now()
	call := models.IncomingCall{
		ID:                    d.NewID(),
		OccurrenceID:          occurrenceID,
		ResponderID:           picked.ID,
		State:                 models.CallPending,
		Reason:                reason,
		AttemptedResponderIDs: append([]string{}, lin.attempted...),
		CreatedAt:             now,
		ExpiresAt:             now.Add(d.CallTimeout),
	}
	callID := call.ID
	pc := &pendingCall{call: call}
	pc.timer = d.Clock.AfterFunc(d.CallTimeout, func() {
		_ = d.do(context.Background(), func() {
			if _, err := d.expire(context.Background(), callID); err != nil && !errors.Is(err, ErrNoEligibleResponder) {
				d.Logger.Error().Err(err).Str("call_id", callID).Msg("redirect after timeout failed")
			}
		})
	})
	d.pending[callID] = pc
	lin.callID = callID
	lin.escalated = false

	metrics.CallsOffered.WithLabelValues(reasonLabel(reason)).Inc()
	metrics.PendingCalls.Set(float64(len(d.pending)))
	d.Logger.Info().
		Str("occurrence_id", occurrenceID).
		Str("call_id", callID).
		Str("responder_id", picked.ID).
		Strs("attempted", call.AttemptedResponderIDs).
		Str("reason", reasonLabel(reason)).
		Msg("call offered")
	d.publish(Event{Type: EventCallOffered, Call: call.Clone(), Occurrence: occ, ResponderID: picked.ID})
	return call.Clone(), nil
}

func (d *Dispatcher) accept(ctx context.Context, callID, responderID string) (models.Occurrence, error) {
	pc, err := d.pendingFor(callID, responderID)
	if err != nil {
		return models.Occurrence{}, err
	}
	status := models.StatusEmAtendimento
	occ, err := d.Store.Update(ctx, pc.call.OccurrenceID, OccurrenceChanges{Status: &status, AssignedTo: &responderID})
	if err != nil {
		return models.Occurrence{}, err
	}
	d.resolve(pc, models.CallAccepted)
	delete(d.lineages, pc.call.OccurrenceID)

	d.Logger.Info().Str("occurrence_id", occ.ID).Str("call_id", callID).Str("responder_id", responderID).Msg("call accepted")
	d.publish(Event{Type: EventCallAccepted, Call: d.finalCall(pc, models.CallAccepted), Occurrence: occ, ResponderID: responderID})
	return occ, nil
}

func (d *Dispatcher) expire(ctx context.Context, callID string) (*models.IncomingCall, error) {
	pc, ok := d.pending[callID]
	if !ok {
		return nil, nil
	}
	d.resolve(pc, models.CallExpired)
	d.Logger.Info().Str("occurrence_id", pc.call.OccurrenceID).Str("call_id", callID).Str("responder_id", pc.call.ResponderID).Msg("call expired without response")
	d.publish(Event{Type: EventCallExpired, Call: d.finalCall(pc, models.CallExpired), Occurrence: d.occurrence(pc.call.OccurrenceID), ResponderID: pc.call.ResponderID})
	return d.redirect(ctx, pc.call, pc.call.ResponderID, models.ReasonNoResponse)
}

func (d *Dispatcher) redirect(ctx context.Context, prev models.IncomingCall, responderID string, reason models.RedirectReason) (*models.IncomingCall, error) {
	excluded := append(append([]string{}, prev.AttemptedResponderIDs...), responderID)
	next, err := d.dispatch(ctx, prev.OccurrenceID, excluded, reason)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// pendingFor returns the pending call if it is addressed to responderID.
func (d *Dispatcher) pendingFor(callID, responderID string) (*pendingCall, error) {
	pc, ok := d.pending[callID]
	if !ok {
		return nil, d.notPending(callID)
	}
	if pc.call.ResponderID != responderID {
		return nil, fmt.Errorf("%w: call %s is offered to another responder", ErrCallNotPending, callID)
	}
	return pc, nil
}

func (d *Dispatcher) notPending(callID string) error {
	rc, ok := d.resolved[callID]
	if !ok {
		return fmt.Errorf("%w: call %s", ErrNotFound, callID)
	}
	if occ, err := d.Store.Get(rc.occurrenceID); err == nil && occ.Status == models.StatusCancelado {
		return fmt.Errorf("%w: call %s", ErrOccurrenceCancelled, callID)
	}
	return fmt.Errorf("%w: call %s is %s", ErrCallNotPending, callID, rc.state)
}

func (d *Dispatcher) resolve(pc *pendingCall, state models.CallState) {
	pc.timer.Stop()
	delete(d.pending, pc.call.ID)
	now := d.Clock.Now()
	d.pruneResolved(now)
	d.resolved[pc.call.ID] = resolvedCall{occurrenceID: pc.call.OccurrenceID, state: state}
	d.finished = append(d.finished, finishedCall{id: pc.call.ID, at: now})
	if lin, ok := d.lineages[pc.call.OccurrenceID]; ok && lin.callID == pc.call.ID {
		lin.callID = ""
	}
	metrics.CallsResolved.WithLabelValues(string(state)).Inc()
	metrics.PendingCalls.Set(float64(len(d.pending)))
}

// pruneResolved forgets calls resolved longer than ResolvedRetention ago.
func (d *Dispatcher) pruneResolved(now time.Time) {
	if d.ResolvedRetention <= 0 {
		return
	}
	cutoff := now.Add(-d.ResolvedRetention)
	n := 0
	for n < len(d.finished) && d.finished[n].at.Before(cutoff) {
		delete(d.resolved, d.finished[n].id)
		n++
	}
	if n > 0 {
		d.finished = append(d.finished[:0], d.finished[n:]...)
	}
}

// invalidate drops the occurrence's pending call and closes its lineage.
func (d *Dispatcher) invalidate(occ models.Occurrence) {
	lin, ok := d.lineages[occ.ID]
	if !ok {
		return
	}
	delete(d.lineages, occ.ID)
	pc, ok := d.pending[lin.callID]
	if !ok {
		return
	}
	d.resolve(pc, models.CallCancelled)
	d.Logger.Info().Str("occurrence_id", occ.ID).Str("call_id", pc.call.ID).Str("status", string(occ.Status)).Msg("pending call invalidated")
	d.publish(Event{Type: EventCallCancelled, Call: d.finalCall(pc, models.CallCancelled), Occurrence: occ, ResponderID: pc.call.ResponderID})
}

func (d *Dispatcher) escalate(occ models.Occurrence, lin *lineage, elig EligibilityResult) {
	if lin.escalated {
		return
	}
	lin.escalated = true
	metrics.Escalations.Inc()
	d.Logger.Warn().
		Str("occurrence_id", occ.ID).
		Str("priority", string(occ.Priority)).
		Str("reason_code", elig.ReasonCode).
		Strs("attempted", lin.attempted).
		Msg("no eligible responder, occurrence escalated")
	d.publish(Event{Type: EventEscalated, Occurrence: occ, ReasonCode: elig.ReasonCode})
}

// retryEscalated dispatches escalated occurrences again, oldest first.
func (d *Dispatcher) retryEscalated(ctx context.Context) {
	var waiting []models.Occurrence
	for id, lin := range d.lineages {
		if !lin.escalated || lin.callID != "" {
			continue
		}
		occ, err := d.Store.Get(id)
		if err != nil {
			continue
		}
		waiting = append(waiting, occ)
	}
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].ID < waiting[j].ID
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})
	for _, occ := range waiting {
		if _, err := d.dispatch(ctx, occ.ID, nil, models.ReasonNone); err != nil && !errors.Is(err, ErrNoEligibleResponder) {
			d.Logger.Error().Err(err).Str("occurrence_id", occ.ID).Msg("escalation retry failed")
		}
	}
}

func (d *Dispatcher) rosterWithLoad() []models.Responder {
	load := d.Store.AssignedLoad()
	for _, pc := range d.pending {
		load[pc.call.ResponderID]++
	}
	out := make([]models.Responder, 0, len(d.roster))
	for _, r := range d.roster {
		r.CurrentLoad = load[r.ID]
		out = append(out, r)
	}
	return out
}

func (d *Dispatcher) responderIndex(id string) (int, bool) {
	for i, r := range d.roster {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (d *Dispatcher) origin(occ models.Occurrence) *Point {
	if p, ok := d.locations[occ.LocationID]; ok {
		return &p
	}
	return nil
}

func (d *Dispatcher) occurrence(id string) models.Occurrence {
	occ, _ := d.Store.Get(id)
	return occ
}

func (d *Dispatcher) finalCall(pc *pendingCall, state models.CallState) models.IncomingCall {
	c := pc.call.Clone()
	c.State = state
	return c
}

func mergeAttempted(attempted, extra []string) []string {
	seen := make(map[string]bool, len(attempted))
	for _, id := range attempted {
		seen[id] = true
	}
	for _, id := range extra {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		attempted = append(attempted, id)
	}
	return attempted
}

func reasonLabel(r models.RedirectReason) string {
	if r == models.ReasonNone {
		return "first_offer"
	}
	return string(r)
}
