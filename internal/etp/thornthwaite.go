// Package etp derives potential evapotranspiration from a filled temperature series.
package etp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/chrissnell/wxgapfill/pkg/solar"
)

// MeanTempVariable is the position of the daily mean temperature in the variable set.
const MeanTempVariable = 2

// ErrNoNormals is returned when a calendar month has no mean temperature at all.
var ErrNoNormals = errors.New("not enough temperature data to compute monthly normals")

// Thornthwaite estimates daily potential evapotranspiration (mm) with the
// Thornthwaite (1948) method. The heat index comes from the monthly normals of
// the daily mean temperature over the whole series.
type Thornthwaite struct{}

func (Thornthwaite) Name() string { return "ETP (mm)" }

// Derive returns one value per date; days without a mean temperature stay missing.
func (th Thornthwaite) Derive(station weather.Station, dates []time.Time, variables []string, filled [][]float64) ([]float64, error) {
	if len(variables) <= MeanTempVariable {
		return nil, fmt.Errorf("variable set has no mean temperature at position %d", MeanTempVariable)
	}
	temps := make([]float64, len(dates))
	for t := range dates {
		temps[t] = filled[t][MeanTempVariable]
	}

	normals, err := MonthlyNormals(dates, temps)
	if err != nil {
		return nil, err
	}
	heat := HeatIndex(normals)

	out := make([]float64, len(dates))
	for t, d := range dates {
		if weather.IsMissing(temps[t]) {
			out[t] = weather.Missing()
			continue
		}
		out[t] = DailyPET(temps[t], heat, solar.DayLength(d.YearDay(), station.Latitude))
	}
	return out, nil
}

// MonthlyNormals averages the series per calendar month, ignoring missing values.
func MonthlyNormals(dates []time.Time, temps []float64) ([12]float64, error) {
	var sum [12]float64
	var n [12]int
	for t, d := range dates {
		if weather.IsMissing(temps[t]) {
			continue
		}
		m := int(d.Month()) - 1
		sum[m] += temps[t]
		n[m]++
	}

	var normals [12]float64
	for m := range normals {
		if n[m] == 0 {
			return normals, fmt.Errorf("%w: %s", ErrNoNormals, time.Month(m+1))
		}
		normals[m] = sum[m] / float64(n[m])
	}
	return normals, nil
}

// HeatIndex is the annual heat index I; months at or below 0 °C contribute nothing.
func HeatIndex(normals [12]float64) float64 {
	heat := 0.0
	for _, tm := range normals {
		if tm > 0 {
			heat += math.Pow(tm/5, 1.514)
		}
	}
	return heat
}

// DailyPET returns the potential evapotranspiration in mm for one day with mean
// temperature temp, annual heat index heat and dayLength hours of daylight.
func DailyPET(temp, heat, dayLength float64) float64 {
	if temp <= 0 || heat <= 0 {
		return 0
	}
	var monthly float64
	if temp >= 26.5 {
		monthly = -415.85 + 32.24*temp - 0.43*temp*temp
	} else {
		a := 6.75e-7*math.Pow(heat, 3) - 7.71e-5*math.Pow(heat, 2) + 1.792e-2*heat + 0.49239
		monthly = 16 * math.Pow(10*temp/heat, a)
	}
	// monthly values assume 30 days of 12 hours
	return monthly * (dayLength / 12) / 30
}
