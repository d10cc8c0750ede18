package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sos_unifio/backend/internal/models"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestSaveOccurrenceIgnoresStaleSnapshots(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	o := models.Occurrence{
		ID:                    "it-" + uuid.NewString(),
		Symptoms:              []models.SymptomTag{models.SymptomDesmaio},
		PeopleCount:           models.PeopleOne,
		LocationName:          "Bloco A",
		Type:                  models.TypeEmergencia,
		Priority:              models.PriorityCritica,
		Status:                models.StatusEmAtendimento,
		AssignedTo:            "R1",
		AttemptedResponderIDs: []string{"R2"},
		OpenedAt:              base,
		CreatedAt:             base,
		UpdatedAt:             base.Add(time.Second),
	}
	if err := store.SaveOccurrence(ctx, o); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale := o
	stale.Status = models.StatusTriagem
	stale.AssignedTo = ""
	stale.UpdatedAt = base
	if err := store.SaveOccurrence(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	items, err := store.ListActiveOccurrences(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, got := range items {
		if got.ID != o.ID {
			continue
		}
		if got.Status != models.StatusEmAtendimento || got.AssignedTo != "R1" || len(got.Symptoms) != 1 {
			t.Fatalf("stale snapshot overwrote row: %+v", got)
		}
		if len(got.AttemptedResponderIDs) != 1 || got.AttemptedResponderIDs[0] != "R2" {
			t.Fatalf("expected attempted list restored, got %v", got.AttemptedResponderIDs)
		}
		return
	}
	t.Fatalf("occurrence %s not listed", o.ID)
}

func TestRespondersRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	id := "it-" + uuid.NewString()

	if err := store.UpsertResponders(ctx, []models.Responder{{ID: id, Name: "Rita", Role: models.RoleSocorrista, Available: true}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.SetResponderAvailability(ctx, id, false); err != nil {
		t.Fatalf("availability: %v", err)
	}
	roster, err := store.ListResponders(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range roster {
		if r.ID == id {
			if r.Available || r.Role != models.RoleSocorrista {
				t.Fatalf("unexpected responder %+v", r)
			}
			return
		}
	}
	t.Fatalf("responder %s not listed", id)
}
