package utils

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	// Ourinhos to Assis, roughly 62 km apart
	ourinhos := LatLon{Lat: -22.9789, Lon: -49.8706}
	assis := LatLon{Lat: -22.6619, Lon: -50.4117}
	d := DistanceKm(ourinhos, assis)
	if d < 60 || d > 66 {
		t.Fatalf("unexpected distance %.2f", d)
	}
	if DistanceKm(ourinhos, ourinhos) != 0 {
		t.Fatalf("expected zero distance to self")
	}
	if math.Abs(DistanceKm(ourinhos, assis)-DistanceKm(assis, ourinhos)) > 1e-9 {
		t.Fatalf("expected symmetric distance")
	}
}

func TestLatLonValid(t *testing.T) {
	cases := []struct {
		p    LatLon
		want bool
	}{
		{LatLon{Lat: -22.97, Lon: -49.87}, true},
		{LatLon{}, false},
		{LatLon{Lat: 91, Lon: 10}, false},
		{LatLon{Lat: 10, Lon: -181}, false},
	}
	for _, tc := range cases {
		if got := tc.p.Valid(); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.p, tc.want, got)
		}
	}
}

func TestPickIsStable(t *testing.T) {
	for _, key := range []string{"sim-1", "sim-2", "occ-abc"} {
		a := Pick(key, "case", 8)
		if a < 0 || a >= 8 {
			t.Fatalf("index out of range: %d", a)
		}
		if b := Pick(key, "case", 8); a != b {
			t.Fatalf("expected stable pick for %s", key)
		}
	}
}
