package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
)

type recordingPersister struct {
	mu    sync.Mutex
	saved []models.Occurrence
	err   error
}

func (p *recordingPersister) SaveOccurrence(ctx context.Context, o models.Occurrence) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, o)
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func TestOccurrenceStoreCreateClassifies(t *testing.T) {
	store := NewOccurrenceStore(nil, zerolog.Nop())
	o, err := store.Create(context.Background(), CreateRequest{
		Symptoms:    []models.SymptomTag{models.SymptomFebreAlta, models.SymptomNauseaVomito},
		PeopleCount: models.PeopleTwoThree,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ID == "" || o.Status != models.StatusAberto {
		t.Fatalf("expected new aberto occurrence, got %+v", o)
	}
	if o.Type != models.TypeUrgencia || o.Priority != models.PriorityAlta {
		t.Fatalf("expected urgencia/alta, got %s/%s", o.Type, o.Priority)
	}
	if o.CreatedAt.IsZero() || !o.CreatedAt.Equal(o.UpdatedAt) {
		t.Fatalf("expected timestamps set on create")
	}

	if _, err := store.Create(context.Background(), CreateRequest{PeopleCount: "5"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad people count, got %v", err)
	}
}

func TestOccurrenceStoreCreateNormalizesTagsBeforeClassifying(t *testing.T) {
	store := NewOccurrenceStore(nil, zerolog.Nop())
	ctx := context.Background()

	o, err := store.Create(ctx, CreateRequest{
		Symptoms:    []models.SymptomTag{"DESMAIO"},
		PeopleCount: models.PeopleOne,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(o.Symptoms) != 1 || o.Symptoms[0] != models.SymptomDesmaio {
		t.Fatalf("expected normalized tag, got %v", o.Symptoms)
	}
	if o.Type != models.TypeEmergencia || o.Priority != models.PriorityCritica {
		t.Fatalf("expected emergencia/critica for an uppercase critical tag, got %s/%s", o.Type, o.Priority)
	}

	o, err = store.Create(ctx, CreateRequest{
		Symptoms:    []models.SymptomTag{"febre_alta", " FEBRE_ALTA", "Febre_Alta "},
		PeopleCount: models.PeopleOne,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(o.Symptoms) != 1 {
		t.Fatalf("expected duplicates collapsed, got %v", o.Symptoms)
	}
	if typ, prio := Classify(o.Symptoms, o.PeopleCount); o.Type != typ || o.Priority != prio {
		t.Fatalf("stored classification %s/%s disagrees with stored tags %s/%s", o.Type, o.Priority, typ, prio)
	}
	if o.Priority != models.PriorityBaixa {
		t.Fatalf("expected baixa for a single distinct tag, got %s", o.Priority)
	}
}

func TestOccurrenceStoreUpdateRules(t *testing.T) {
	store := NewOccurrenceStore(nil, zerolog.Nop())
	now := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	o, _ := store.Create(ctx, CreateRequest{PeopleCount: models.PeopleOne})
	now = now.Add(time.Minute)

	onSite := models.StatusNoLocal
	updated, err := store.Update(ctx, o.ID, OccurrenceChanges{Status: &onSite})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at refreshed")
	}

	back := models.StatusTriagem
	if _, err := store.Update(ctx, o.ID, OccurrenceChanges{Status: &back}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected backward move rejected, got %v", err)
	}
	if _, err := store.Update(ctx, o.ID, OccurrenceChanges{Status: &back, Override: true}); err != nil {
		t.Fatalf("expected operator override to pass, got %v", err)
	}

	done := models.StatusConcluido
	if _, err := store.Update(ctx, o.ID, OccurrenceChanges{Status: &done}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	prio := models.PriorityCritica
	if _, err := store.Update(ctx, o.ID, OccurrenceChanges{Priority: &prio}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal occurrence to be frozen, got %v", err)
	}
	if _, err := store.Update(ctx, "missing", OccurrenceChanges{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOccurrenceStoreListActive(t *testing.T) {
	store := NewOccurrenceStore(nil, zerolog.Nop())
	now := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	first, _ := store.Create(ctx, CreateRequest{PeopleCount: models.PeopleOne})
	now = now.Add(time.Second)
	second, _ := store.Create(ctx, CreateRequest{PeopleCount: models.PeopleOne})
	now = now.Add(time.Second)
	third, _ := store.Create(ctx, CreateRequest{PeopleCount: models.PeopleOne})

	cancelled := models.StatusCancelado
	if _, err := store.Update(ctx, second.ID, OccurrenceChanges{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	active := store.ListActive()
	if len(active) != 2 || active[0].ID != third.ID || active[1].ID != first.ID {
		t.Fatalf("unexpected active list %+v", active)
	}
	if len(store.List()) != 3 {
		t.Fatalf("expected terminal occurrences kept in history")
	}
}

func TestOccurrenceStorePersistFailureKeepsMemory(t *testing.T) {
	persister := &recordingPersister{err: errors.New("backend down")}
	store := NewOccurrenceStore(persister, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()

	o, err := store.Create(ctx, CreateRequest{PeopleCount: models.PeopleOne})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancel()
	<-done

	if persister.count() != 1 {
		t.Fatalf("expected one persistence attempt, got %d", persister.count())
	}
	if _, err := store.Get(o.ID); err != nil {
		t.Fatalf("expected occurrence kept in memory: %v", err)
	}
}

func TestOccurrenceStoreImportIsIdempotent(t *testing.T) {
	store := NewOccurrenceStore(nil, zerolog.Nop())
	ctx := context.Background()
	in := models.Occurrence{ID: "77", Priority: models.PriorityAlta, Symptoms: []models.SymptomTag{"Febre_Alta ", "febre_alta"}}

	o, created, err := store.Import(ctx, in)
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	if o.Priority != models.PriorityAlta || o.Type != models.TypeUrgencia {
		t.Fatalf("expected given priority kept and type classified, got %s/%s", o.Type, o.Priority)
	}
	if len(o.Symptoms) != 1 || o.Symptoms[0] != models.SymptomFebreAlta {
		t.Fatalf("expected normalized symptoms, got %v", o.Symptoms)
	}

	_, created, err = store.Import(ctx, in)
	if err != nil || created {
		t.Fatalf("expected duplicate import ignored, got %v %v", created, err)
	}
	if _, _, err := store.Import(ctx, models.Occurrence{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing id, got %v", err)
	}
}
