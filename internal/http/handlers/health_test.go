package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/sos_unifio/backend/internal/db"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	r, h := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	h.Store = pingerFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	w = doJSON(t, r, http.MethodGet, "/healthz", nil)
	var eb errorBody
	decode(t, w, &eb)
	if w.Code != http.StatusServiceUnavailable || eb.Error.Code != "DB_UNAVAILABLE" {
		t.Fatalf("expected 503 DB_UNAVAILABLE, got %d %s", w.Code, eb.Error.Code)
	}
}

func TestHealthzIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	r, h := newTestRouter(t)
	h.Store = store

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
