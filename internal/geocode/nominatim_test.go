package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"
)

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "-22.9785",
			Lon:         "-49.8708",
			DisplayName: "UNIFIO, Ourinhos, Brasil",
			Importance:  0.41,
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != -22.9785 || res.Lon != -49.8708 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "UNIFIO, Ourinhos, Brasil" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if _, err := parseNominatimItems(nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNominatimCachesQueries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("countrycodes") != "br" {
			t.Errorf("expected countrycodes=br, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"lat":"-22.9","lon":"-49.8","display_name":"Bloco A","importance":0.3}]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, Limiter: rate.NewLimiter(rate.Inf, 1)}
	for i := 0; i < 2; i++ {
		res, err := g.Geocode(context.Background(), "Bloco A")
		if err != nil {
			t.Fatalf("geocode: %v", err)
		}
		if res.Lat != -22.9 {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected one upstream request, got %d", n)
	}
}
