package utils

import "math"

const earthRadiusKm = 6371.0

// LatLon is a WGS84 coordinate in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Valid reports whether p lies within the WGS84 ranges and is not the 0,0
// placeholder some sources send for a missing position.
func (p LatLon) Valid() bool {
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b LatLon) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(d float64) float64 {
	return d * math.Pi / 180
}
