package backendapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

func newTestServer(t *testing.T, posted chan<- occurrenceBody) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ocorrencias", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body occurrenceBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		posted <- body
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/ocorrencias/locais", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"nome":"Biblioteca","bloco":"B","latitude":-22.9,"longitude":-49.8},{"id":"lab","nome":"Laboratório"}]`))
	})
	mux.HandleFunc("/ocorrencias/resumoDash", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":4,"abertas":1}`))
	})
	mux.HandleFunc("/ocorrencias/occ-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"a02_id":"occ-1","a02_prioridade":"alta","a03_nome":"Quadra"}`))
	})
	return httptest.NewServer(mux)
}

func TestSaveOccurrencePostsSnapshot(t *testing.T) {
	posted := make(chan occurrenceBody, 1)
	srv := newTestServer(t, posted)
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	opened := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	err := c.SaveOccurrence(context.Background(), models.Occurrence{
		ID:          "occ-1",
		Symptoms:    []models.SymptomTag{models.SymptomDesmaio},
		PeopleCount: models.PeopleOne,
		Type:        models.TypeEmergencia,
		Priority:    models.PriorityCritica,
		Status:      models.StatusTriagem,
		OpenedAt:    opened,
		UpdatedAt:   opened,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	body := <-posted
	if body.ID != "occ-1" || body.Prioridade != "critica" || body.Status != "triagem" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.Sintomas) != 1 || body.DataAbertura != "2024-05-10T09:00:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReadEndpoints(t *testing.T) {
	srv := newTestServer(t, make(chan occurrenceBody, 1))
	defer srv.Close()
	c := New(srv.URL, "tok")
	ctx := context.Background()

	locs, err := c.ListLocations(ctx)
	if err != nil {
		t.Fatalf("locations: %v", err)
	}
	if len(locs) != 2 || locs[0].ID != "3" || locs[0].Lat == nil || locs[1].ID != "lab" || locs[1].Lat != nil {
		t.Fatalf("unexpected locations %+v", locs)
	}

	summary, err := c.DashboardSummary(ctx)
	if err != nil || summary["total"] != float64(4) {
		t.Fatalf("unexpected summary %v %v", summary, err)
	}

	occ, err := c.GetOccurrence(ctx, "occ-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if occ.Priority != models.PriorityAlta || occ.LocationName != "Quadra" {
		t.Fatalf("unexpected occurrence %+v", occ)
	}

	_, err = c.GetOccurrence(ctx, "missing")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected wrapped StatusError, got %v", err)
	}
}
