// Package solar provides the astronomical day length used by temperature-based
// evapotranspiration models.
package solar

import "math"

// Declination returns the solar declination in radians for a day of year (1-366).
func Declination(dayOfYear int) float64 {
	doy := float64(dayOfYear)
	innerAngle := (356.6 + 0.9856*doy) * (math.Pi / 180.0)
	outerAngle := (278.97 + 0.9856*doy + 1.9165*math.Sin(innerAngle)) * (math.Pi / 180.0)
	return math.Asin(0.39785 * math.Sin(outerAngle))
}

// DayLength returns the number of daylight hours at latitude (decimal degrees)
// on the given day of year. Polar day yields 24 and polar night 0.
func DayLength(dayOfYear int, latitude float64) float64 {
	latRad := latitude * (math.Pi / 180.0)

	// cos(H) = -tan(lat) * tan(declination) at sunrise/sunset
	cosH := -math.Tan(latRad) * math.Tan(Declination(dayOfYear))
	switch {
	case cosH <= -1:
		return 24
	case cosH >= 1:
		return 0
	}
	// 15 degrees of hour angle per hour, both sides of solar noon
	return 2 * math.Acos(cosH) * (180.0 / math.Pi) / 15.0
}
