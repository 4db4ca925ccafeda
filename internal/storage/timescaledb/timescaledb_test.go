package timescaledb

import (
	"math"
	"testing"
	"time"

	"github.com/chrissnell/wxgapfill/internal/database"
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestConversions(t *testing.T) {
	assert.Equal(t, 0.0, FahrenheitToCelsius(ptr(32)))
	assert.Equal(t, 100.0, FahrenheitToCelsius(ptr(212)))
	assert.Equal(t, -17.8, FahrenheitToCelsius(ptr(0)))
	assert.True(t, math.IsNaN(FahrenheitToCelsius(nil)))

	assert.Equal(t, 25.4, InchesToMillimeters(ptr(1)))
	assert.Equal(t, 0.0, InchesToMillimeters(ptr(0)))
	assert.True(t, math.IsNaN(InchesToMillimeters(nil)))
}

func TestAssemble(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	stations := []database.GapfillStation{
		{StationName: "alpha", Latitude: 45, Longitude: -73, Altitude: 50, ClimateID: "701"},
		{StationName: "bravo", Latitude: 46, Longitude: -72, Altitude: 80},
	}
	rows := []database.DailyAggregate{
		{Bucket: from, StationName: "alpha", MaxOutTemp: ptr(50), MinOutTemp: ptr(32), OutTemp: ptr(41), PeriodRain: ptr(0.1)},
		{Bucket: from.AddDate(0, 0, 2), StationName: "bravo", OutTemp: ptr(68)},
		{Bucket: from.AddDate(0, 0, 5), StationName: "alpha", OutTemp: ptr(68)},
		{Bucket: from, StationName: "unknown", OutTemp: ptr(68)},
	}

	ds := Assemble(stations, rows, from, to)
	require.NoError(t, ds.Validate())
	assert.Equal(t, 3, ds.Rows())
	assert.Equal(t, "701", ds.Stations[0].ClimateID)

	assert.Equal(t, 10.0, ds.At(0, 0, 0))
	assert.Equal(t, 0.0, ds.At(0, 0, 1))
	assert.Equal(t, 5.0, ds.At(0, 0, 2))
	assert.Equal(t, 2.5, ds.At(0, 0, 3))
	assert.Equal(t, 20.0, ds.At(2, 1, 2))
	assert.True(t, weather.IsMissing(ds.At(2, 1, 0)))
	assert.True(t, weather.IsMissing(ds.At(1, 0, 2)))
}

func TestFilledRows(t *testing.T) {
	dates := weather.DailyAxis(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC))
	res := &gapfill.Result{
		Status:    gapfill.StatusCompleted,
		Station:   weather.Station{Name: "alpha"},
		Variables: []string{"Max Temp (deg C)"},
		Dates:     dates,
		Filled:    [][]float64{{1}, {2}, {math.NaN()}},
		Report: &gapfill.Report{
			Header:  gapfill.Header{Start: dates[1], End: dates[2]},
			Details: []gapfill.DetailRow{{Variable: "Max Temp (deg C)", Date: dates[1], Filled: true}},
		},
	}

	rows := FilledRows(res)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{dates[1], "alpha", "Max Temp (deg C)", 2.0, true}, rows[0])
	assert.Equal(t, []any{dates[2], "alpha", "Max Temp (deg C)", nil, false}, rows[1])
}
