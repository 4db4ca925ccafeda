// Package geo computes station-to-station horizontal distance and altitude difference.
package geo

import (
	"math"

	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"
)

// HorizontalDistance returns the distance in km between two points given in decimal
// degrees, on the IAU 1976 ellipsoid, rounded to 0.1 km.
func HorizontalDistance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	a := globe.Coord{Lat: unit.AngleFromDeg(lat1), Lon: unit.AngleFromDeg(lon1)}
	b := globe.Coord{Lat: unit.AngleFromDeg(lat2), Lon: unit.AngleFromDeg(lon2)}
	return round1(globe.Earth76.Distance(a, b))
}

// AltitudeDifference returns other minus ref in m, rounded to 0.1 m.
func AltitudeDifference(ref, other float64) float64 {
	return round1(other - ref)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
