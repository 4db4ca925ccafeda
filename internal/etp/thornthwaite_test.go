package etp

import (
	"math"
	"testing"
	"time"

	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyPET(t *testing.T) {
	assert.Equal(t, 0.0, DailyPET(-5, 40, 12))
	assert.Equal(t, 0.0, DailyPET(0, 40, 12))
	assert.Equal(t, 0.0, DailyPET(10, 0, 12))

	// T equal to I/10 makes the power term 1: 16 mm per 30 days of 12 h.
	assert.InDelta(t, 16.0/30, DailyPET(4, 40, 12), 1e-12)
	assert.InDelta(t, 2*16.0/30, DailyPET(4, 40, 24), 1e-12)

	assert.Greater(t, DailyPET(20, 40, 12), DailyPET(10, 40, 12))
}

func TestHeatIndex(t *testing.T) {
	var normals [12]float64
	assert.Equal(t, 0.0, HeatIndex(normals))

	normals[6] = 5
	normals[0] = -10
	assert.InDelta(t, 1.0, HeatIndex(normals), 1e-12)
}

func TestMonthlyNormals(t *testing.T) {
	dates := weather.DailyAxis(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
	temps := make([]float64, len(dates))
	for i, d := range dates {
		temps[i] = float64(d.Month())
	}
	temps[0] = math.NaN()

	normals, err := MonthlyNormals(dates, temps)
	require.NoError(t, err)
	assert.Equal(t, 1.0, normals[0])
	assert.Equal(t, 12.0, normals[11])

	_, err = MonthlyNormals(dates[:31], temps[:31])
	assert.ErrorIs(t, err, ErrNoNormals)
}

func TestThornthwaiteDerive(t *testing.T) {
	dates := weather.DailyAxis(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
	filled := make([][]float64, len(dates))
	for i, d := range dates {
		mean := 20 * math.Sin(math.Pi*float64(d.YearDay()-80)/182.5)
		filled[i] = []float64{mean + 5, mean - 5, mean, 0}
	}
	filled[10][2] = math.NaN()

	values, err := Thornthwaite{}.Derive(weather.Station{Latitude: 46.8}, dates, weather.DefaultVariables, filled)
	require.NoError(t, err)
	require.Len(t, values, len(dates))

	assert.True(t, math.IsNaN(values[10]))
	assert.Equal(t, 0.0, values[0])
	assert.Greater(t, values[180], 3.0)

	_, err = Thornthwaite{}.Derive(weather.Station{}, dates, []string{"Max Temp (deg C)"}, filled)
	assert.Error(t, err)
}
