package service

import (
	"math"
	"sort"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/utils"
)

const (
	ReasonNoResponders   = "NO_RESPONDERS"
	ReasonNoEligibleRole = "NO_ELIGIBLE_ROLE"
	ReasonNoneAvailable  = "NO_AVAILABLE_RESPONDERS"
	ReasonAllAttempted   = "ALL_RESPONDERS_ATTEMPTED"
)

type EligibilityResult struct {
	Eligible   []models.Responder
	ReasonCode string
	ReasonText string
	Stages     []EligibilityStage
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Responder
}

// Point is a coordinate pair on campus.
type Point = utils.LatLon

// FilterEligibleResponders narrows the roster down to responders that may be
// offered an occurrence: eligible role, available, and not already attempted.
func FilterEligibleResponders(roster []models.Responder, excluded []string) EligibilityResult {
	result := EligibilityResult{}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "roster",
		Candidates: roster,
	})
	if len(roster) == 0 {
		result.ReasonCode = ReasonNoResponders
		result.ReasonText = "Responder roster is empty"
		return result
	}

	afterRole := filterResponders(roster, func(r models.Responder) bool {
		return r.Role.CanRespond()
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "role_rule",
		Candidates: afterRole,
	})
	if len(afterRole) == 0 {
		result.ReasonCode = ReasonNoEligibleRole
		result.ReasonText = "No socorrista, colaborador or professor in roster"
		return result
	}

	afterAvailability := filterResponders(afterRole, func(r models.Responder) bool {
		return r.Available
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "availability_rule",
		Candidates: afterAvailability,
	})
	if len(afterAvailability) == 0 {
		result.ReasonCode = ReasonNoneAvailable
		result.ReasonText = "No responder is available"
		return result
	}

	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	afterExclusion := filterResponders(afterAvailability, func(r models.Responder) bool {
		return !skip[r.ID]
	})
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "exclusion_rule",
		Candidates: afterExclusion,
	})
	if len(afterExclusion) == 0 {
		result.ReasonCode = ReasonAllAttempted
		result.ReasonText = "Every available responder was already offered this occurrence"
		return result
	}

	result.Eligible = afterExclusion
	return result
}

// PickResponder orders eligible responders by load, then by distance to origin
// when both sides have coordinates, then by id, and returns the first one along
// with the ordered list. eligible must not be empty.
func PickResponder(eligible []models.Responder, origin *Point) (models.Responder, []models.Responder) {
	ordered := append([]models.Responder(nil), eligible...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CurrentLoad != ordered[j].CurrentLoad {
			return ordered[i].CurrentLoad < ordered[j].CurrentLoad
		}
		di, dj := distanceKm(ordered[i], origin), distanceKm(ordered[j], origin)
		if di != dj {
			return di < dj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered[0], ordered
}

func distanceKm(r models.Responder, origin *Point) float64 {
	if origin == nil || r.Lat == nil || r.Lon == nil {
		return math.Inf(1)
	}
	return utils.DistanceKm(*origin, Point{Lat: *r.Lat, Lon: *r.Lon})
}

func filterResponders(responders []models.Responder, keep func(models.Responder) bool) []models.Responder {
	out := make([]models.Responder, 0, len(responders))
	for _, r := range responders {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
