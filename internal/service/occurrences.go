package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/metrics"
	"github.com/sos_unifio/backend/internal/models"
)

// Persister stores a snapshot of an occurrence in a durable collaborator.
type Persister interface {
	SaveOccurrence(ctx context.Context, o models.Occurrence) error
}

// MultiPersister fans a snapshot out to every persister and returns the first error.
type MultiPersister []Persister

func (m MultiPersister) SaveOccurrence(ctx context.Context, o models.Occurrence) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.SaveOccurrence(ctx, o); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type CreateRequest struct {
	RequesterID    string
	RequesterName  string
	RequesterRole  string
	Description    string
	Symptoms       []models.SymptomTag
	PeopleCount    models.PeopleCount
	LocationID     string
	LocationName   string
	LocationDetail string
}

// OccurrenceChanges holds a partial update. Nil fields are left untouched.
type OccurrenceChanges struct {
	Status         *models.Status
	Type           *models.OccurrenceType
	Priority       *models.Priority
	AssignedTo     *string
	Description    *string
	LocationDetail *string
	// Attempted replaces the persisted attempted list when non-nil.
	Attempted []string
	// Override lets an operator move the status backwards.
	Override bool
}

// OccurrenceStore is the authoritative in-memory collection of occurrences for
// the running process. Every mutation is queued for persistence; a failed
// write is logged and never rolls back memory.
type OccurrenceStore struct {
	Persister Persister
	Logger    zerolog.Logger
	Now       func() time.Time
	NewID     func() string

	mu    sync.RWMutex
	items map[string]*models.Occurrence
	queue chan models.Occurrence
}

func NewOccurrenceStore(persister Persister, logger zerolog.Logger) *OccurrenceStore {
	return &OccurrenceStore{
		Persister: persister,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
		items:     map[string]*models.Occurrence{},
		queue:     make(chan models.Occurrence, 256),
	}
}

// Run drains the persistence queue until ctx is done.
func (s *OccurrenceStore) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case o := <-s.queue:
			s.save(ctx, o)
		}
	}
}

func (s *OccurrenceStore) drain() {
	for {
		select {
		case o := <-s.queue:
			s.save(context.Background(), o)
		default:
			return
		}
	}
}

func (s *OccurrenceStore) save(ctx context.Context, o models.Occurrence) {
	if s.Persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Persister.SaveOccurrence(ctx, o); err != nil {
		metrics.PersistFailures.Inc()
		s.Logger.Warn().Err(err).Str("occurrence_id", o.ID).Msg("failed to persist occurrence")
	}
}

func (s *OccurrenceStore) persist(o models.Occurrence) {
	if s.Persister == nil {
		return
	}
	select {
	case s.queue <- o.Clone():
	default:
		metrics.PersistFailures.Inc()
		s.Logger.Warn().Str("occurrence_id", o.ID).Msg("persistence queue full, snapshot dropped")
	}
}

func (s *OccurrenceStore) Create(ctx context.Context, req CreateRequest) (models.Occurrence, error) {
	if !req.PeopleCount.Valid() {
		return models.Occurrence{}, fmt.Errorf("%w: people_count %q", ErrInvalidRequest, req.PeopleCount)
	}
	now := s.Now()
	symptoms := dedupeSymptoms(req.Symptoms)
	typ, prio := Classify(symptoms, req.PeopleCount)
	o := models.Occurrence{
		ID:             s.NewID(),
		RequesterID:    req.RequesterID,
		RequesterName:  req.RequesterName,
		RequesterRole:  req.RequesterRole,
		Description:    strings.TrimSpace(req.Description),
		Symptoms:       symptoms,
		PeopleCount:    req.PeopleCount,
		LocationID:     req.LocationID,
		LocationName:   req.LocationName,
		LocationDetail: req.LocationDetail,
		Type:           typ,
		Priority:       prio,
		Status:         models.StatusAberto,
		OpenedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.items[o.ID] = &o
	out := o.Clone()
	s.mu.Unlock()

	metrics.OccurrencesCreated.WithLabelValues(string(o.Type), string(o.Priority)).Inc()
	s.persist(out)
	return out, nil
}

// Import inserts an occurrence that already carries an id, such as one pushed
// by the realtime backend. It reports false when the id was already known.
func (s *OccurrenceStore) Import(ctx context.Context, o models.Occurrence) (models.Occurrence, bool, error) {
	if strings.TrimSpace(o.ID) == "" {
		return models.Occurrence{}, false, fmt.Errorf("%w: occurrence id required", ErrInvalidRequest)
	}

	s.mu.Lock()
	if existing, ok := s.items[o.ID]; ok {
		out := existing.Clone()
		s.mu.Unlock()
		return out, false, nil
	}

	now := s.Now()
	if !o.PeopleCount.Valid() {
		o.PeopleCount = models.PeopleOne
	}
	o.Symptoms = dedupeSymptoms(o.Symptoms)
	if o.Type == "" || o.Priority == "" {
		typ, prio := Classify(o.Symptoms, o.PeopleCount)
		if o.Type == "" {
			o.Type = typ
		}
		if o.Priority == "" {
			o.Priority = prio
		}
	}
	if !o.Status.Valid() {
		o.Status = models.StatusAberto
	}
	if o.OpenedAt.IsZero() {
		o.OpenedAt = now
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	stored := o.Clone()
	s.items[o.ID] = &stored
	s.mu.Unlock()

	metrics.OccurrencesCreated.WithLabelValues(string(o.Type), string(o.Priority)).Inc()
	s.persist(o)
	return o.Clone(), true, nil
}

func (s *OccurrenceStore) Update(ctx context.Context, id string, changes OccurrenceChanges) (models.Occurrence, error) {
	s.mu.Lock()
	current, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return models.Occurrence{}, fmt.Errorf("%w: occurrence %s", ErrNotFound, id)
	}
	if current.Status.Terminal() {
		s.mu.Unlock()
		return models.Occurrence{}, fmt.Errorf("%w: occurrence %s is %s", ErrInvalidTransition, id, current.Status)
	}

	next := current.Clone()
	if changes.Status != nil {
		st := *changes.Status
		if !st.Valid() {
			s.mu.Unlock()
			return models.Occurrence{}, fmt.Errorf("%w: status %q", ErrInvalidRequest, st)
		}
		if st.Before(current.Status) && !changes.Override {
			s.mu.Unlock()
			return models.Occurrence{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, st)
		}
		next.Status = st
	}
	if changes.Type != nil {
		next.Type = *changes.Type
	}
	if changes.Priority != nil {
		next.Priority = *changes.Priority
	}
	if changes.AssignedTo != nil {
		next.AssignedTo = *changes.AssignedTo
	}
	if changes.Description != nil {
		next.Description = *changes.Description
	}
	if changes.LocationDetail != nil {
		next.LocationDetail = *changes.LocationDetail
	}
	if changes.Attempted != nil {
		next.AttemptedResponderIDs = append([]string{}, changes.Attempted...)
	}
	next.UpdatedAt = s.Now()
	s.items[id] = &next
	out := next.Clone()
	s.mu.Unlock()

	if changes.Status != nil && *changes.Status != current.Status {
		metrics.StatusChanges.WithLabelValues(string(current.Status), string(next.Status)).Inc()
	}
	s.persist(out)
	return out, nil
}

func (s *OccurrenceStore) Get(id string) (models.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.items[id]
	if !ok {
		return models.Occurrence{}, fmt.Errorf("%w: occurrence %s", ErrNotFound, id)
	}
	return o.Clone(), nil
}

// ListActive returns the non-terminal occurrences, newest first.
func (s *OccurrenceStore) ListActive() []models.Occurrence {
	return s.list(func(o *models.Occurrence) bool { return !o.Status.Terminal() })
}

// List returns every occurrence, newest first.
func (s *OccurrenceStore) List() []models.Occurrence {
	return s.list(func(*models.Occurrence) bool { return true })
}

func (s *OccurrenceStore) list(keep func(*models.Occurrence) bool) []models.Occurrence {
	s.mu.RLock()
	out := make([]models.Occurrence, 0, len(s.items))
	for _, o := range s.items {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// AssignedLoad counts active occurrences per assigned responder.
func (s *OccurrenceStore) AssignedLoad() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	load := map[string]int{}
	for _, o := range s.items {
		if o.AssignedTo != "" && !o.Status.Terminal() {
			load[o.AssignedTo]++
		}
	}
	return load
}

// Restore replaces the in-memory state with a snapshot. Nothing is persisted.
func (s *OccurrenceStore) Restore(items []models.Occurrence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*models.Occurrence, len(items))
	for _, o := range items {
		if o.ID == "" {
			continue
		}
		c := o.Clone()
		s.items[c.ID] = &c
	}
}

func dedupeSymptoms(in []models.SymptomTag) []models.SymptomTag {
	seen := map[models.SymptomTag]bool{}
	out := make([]models.SymptomTag, 0, len(in))
	for _, s := range in {
		s = models.SymptomTag(strings.ToLower(strings.TrimSpace(string(s))))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
