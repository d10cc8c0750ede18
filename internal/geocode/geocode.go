package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/utils"
)

var ErrNotFound = errors.New("geocode not found")

type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Confidence  float64
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

// BuildLocationQuery joins the non-empty parts, most specific first.
func BuildLocationQuery(name, block, campus string) string {
	parts := []string{}
	for _, p := range []string{name, block, campus} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func ShouldGeocode(loc models.Location, force bool) bool {
	if force {
		return true
	}
	if loc.Lat == nil || loc.Lon == nil {
		return true
	}
	return !utils.LatLon{Lat: *loc.Lat, Lon: *loc.Lon}.Valid()
}

// FillCoordinates geocodes the locations missing coordinates and returns the
// list with whatever could be resolved. Failures are logged and skipped.
func FillCoordinates(ctx context.Context, g Geocoder, campus string, locations []models.Location, logger zerolog.Logger) []models.Location {
	out := make([]models.Location, len(locations))
	copy(out, locations)
	for i, loc := range out {
		if !ShouldGeocode(loc, false) {
			continue
		}
		query := BuildLocationQuery(loc.Name, loc.Block, campus)
		res, err := g.Geocode(ctx, query)
		if err != nil {
			logger.Warn().Err(err).Str("location_id", loc.ID).Str("query", query).Msg("geocode failed")
			continue
		}
		lat, lon := res.Lat, res.Lon
		out[i].Lat = &lat
		out[i].Lon = &lon
		logger.Info().Str("location_id", loc.ID).Str("display_name", res.DisplayName).Float64("confidence", res.Confidence).Msg("location geocoded")
	}
	return out
}
