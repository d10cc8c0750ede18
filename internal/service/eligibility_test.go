package service

import (
	"testing"

	"github.com/sos_unifio/backend/internal/models"
)

func TestFilterEligibleResponders(t *testing.T) {
	roster := []models.Responder{
		{ID: "r1", Role: models.RoleSocorrista, Available: true},
		{ID: "r2", Role: models.RoleAluno, Available: true},
		{ID: "r3", Role: models.RoleProfessor, Available: false},
		{ID: "r4", Role: models.RoleColaborador, Available: true},
	}

	res := FilterEligibleResponders(roster, []string{"r1"})
	if len(res.Eligible) != 1 || res.Eligible[0].ID != "r4" {
		t.Fatalf("expected only r4 eligible, got %+v", res.Eligible)
	}
	if len(res.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(res.Stages))
	}
}

func TestFilterEligibleResponders_ReasonCodes(t *testing.T) {
	cases := []struct {
		name     string
		roster   []models.Responder
		excluded []string
		want     string
	}{
		{"empty roster", nil, nil, ReasonNoResponders},
		{"only students", []models.Responder{{ID: "a", Role: models.RoleAluno, Available: true}}, nil, ReasonNoEligibleRole},
		{"nobody available", []models.Responder{{ID: "a", Role: models.RoleSocorrista}}, nil, ReasonNoneAvailable},
		{"all attempted", []models.Responder{{ID: "a", Role: models.RoleSocorrista, Available: true}}, []string{"a"}, ReasonAllAttempted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := FilterEligibleResponders(tc.roster, tc.excluded)
			if len(res.Eligible) != 0 {
				t.Fatalf("expected no eligible responders, got %+v", res.Eligible)
			}
			if res.ReasonCode != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, res.ReasonCode)
			}
		})
	}
}

func TestPickResponderPrefersLowerLoad(t *testing.T) {
	eligible := []models.Responder{
		{ID: "r1", CurrentLoad: 2},
		{ID: "r2", CurrentLoad: 0},
		{ID: "r3", CurrentLoad: 1},
	}
	picked, ordered := PickResponder(eligible, nil)
	if picked.ID != "r2" {
		t.Fatalf("expected r2, got %s", picked.ID)
	}
	if ordered[1].ID != "r3" || ordered[2].ID != "r1" {
		t.Fatalf("unexpected order %+v", ordered)
	}
	if eligible[0].ID != "r1" {
		t.Fatalf("expected input slice untouched")
	}
}

func TestPickResponderUsesDistanceThenID(t *testing.T) {
	near, far := -22.2300, -22.2900
	lon := -49.9600
	eligible := []models.Responder{
		{ID: "b", Lat: &far, Lon: &lon},
		{ID: "a"},
		{ID: "c", Lat: &near, Lon: &lon},
	}
	origin := &Point{Lat: -22.2310, Lon: -49.9600}
	picked, ordered := PickResponder(eligible, origin)
	if picked.ID != "c" {
		t.Fatalf("expected nearest responder c, got %s", picked.ID)
	}
	if ordered[1].ID != "b" || ordered[2].ID != "a" {
		t.Fatalf("expected responders without coordinates last, got %+v", ordered)
	}

	picked, _ = PickResponder([]models.Responder{{ID: "z"}, {ID: "y"}}, nil)
	if picked.ID != "y" {
		t.Fatalf("expected id tie-break, got %s", picked.ID)
	}
}
