package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/wxgapfill/internal/controllers/restserver"
	"github.com/chrissnell/wxgapfill/internal/export"
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/regression"
	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/chrissnell/wxgapfill/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySource struct {
	ds *weather.Dataset
}

func (m memorySource) Stations(context.Context) ([]weather.Station, error) { return m.ds.Stations, nil }

func (m memorySource) Load(context.Context, time.Time, time.Time) (*weather.Dataset, error) {
	return m.ds.Clone(), nil
}

func (m memorySource) Health(context.Context) error { return nil }

type memorySink struct {
	mu      sync.Mutex
	written []string
}

func (m *memorySink) Write(_ context.Context, res *gapfill.Result) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, res.Station.Name)
	return int64(len(res.Dates)), nil
}

// testDataset builds three nearby stations over 60 days. Station A is B shifted by
// one degree with a few gaps, C is a scaled copy of B. Precipitation is always dry.
func testDataset() *weather.Dataset {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := weather.DailyAxis(start, start.AddDate(0, 0, 59))
	stations := []weather.Station{
		{Name: "A", Latitude: 45.50, Longitude: -73.60, Altitude: 50, ClimateID: "7000001"},
		{Name: "B", Latitude: 45.55, Longitude: -73.55, Altitude: 60, ClimateID: "7000002"},
		{Name: "C", Latitude: 45.45, Longitude: -73.65, Altitude: 40, ClimateID: "7000003"},
	}
	ds := weather.NewDataset(dates, stations, weather.DefaultVariables)
	for t := range dates {
		for v := 0; v < weather.TemperatureVariables; v++ {
			b := math.Round((10*math.Sin(float64(t)/5)+float64(v))*10) / 10
			ds.Set(t, 1, v, b)
			ds.Set(t, 0, v, b+1)
			ds.Set(t, 2, v, math.Round((0.5*b+2)*10)/10)
		}
		for s := range stations {
			ds.Set(t, s, 3, 0)
		}
	}
	for _, t := range []int{5, 17, 40} {
		for v := 0; v < weather.TemperatureVariables; v++ {
			ds.Set(t, 0, v, weather.Missing())
		}
	}
	return ds
}

func testConfig() *config.ConfigData {
	return &config.ConfigData{Fill: config.FillData{MinPairs: 20}}
}

func newTestApp(t *testing.T) (*App, *memorySink, *runstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := runstore.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	exp, err := export.New(filepath.Join(dir, "out"))
	require.NoError(t, err)

	sink := &memorySink{}
	a := NewWithSource(testConfig(), memorySource{ds: testDataset()}, "test", zap.NewNop().Sugar(),
		WithSink(sink), WithExporter(exp), WithRunStore(store))
	return a, sink, store, filepath.Join(dir, "out")
}

func TestFillStation(t *testing.T) {
	a, sink, _, outDir := newTestApp(t)
	ctx := context.Background()

	var mu sync.Mutex
	var warnings []string
	results, err := a.Fill(ctx, restserver.RunRequest{Station: "A"}, gapfill.NotifierFunc(func(ev gapfill.Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Kind == gapfill.EventWarning {
			warnings = append(warnings, ev.Message)
		}
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, gapfill.StatusCompleted, res.Status)
	assert.Equal(t, 9, res.FilledCount())
	src := testDataset()
	for _, row := range []int{5, 17, 40} {
		assert.InDelta(t, src.At(row, 1, 0)+1, res.Filled[row][0], 0.15, "row %d", row)
	}

	mu.Lock()
	assert.NotEmpty(t, warnings, "dry precipitation is skipped with a warning")
	mu.Unlock()

	assert.Equal(t, []string{"A"}, sink.written)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	records, err := a.History(ctx, "A", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 9, records[0].Filled)
	assert.NotEmpty(t, records[0].Fingerprint)

	rec, err := a.Run(ctx, records[0].ID)
	require.NoError(t, err)
	require.NotNil(t, rec.Report)
	assert.Equal(t, "OLS", rec.Mode)
	assert.Equal(t, 9, rec.Report.Total.Filled)

	_, err = a.Run(ctx, "missing")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestFillAllStations(t *testing.T) {
	a, sink, _, _ := newTestApp(t)

	results, err := a.Fill(context.Background(), restserver.RunRequest{All: true, FullErrorAnalysis: true}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, gapfill.StatusCompleted, res.Status)
		assert.NotNil(t, res.Predicted)
	}
	assert.Equal(t, []string{"A", "B", "C"}, sink.written)

	records, err := a.History(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, rec := range records {
		assert.True(t, rec.FullErrorAnalysis)
	}
}

func TestFillCanceled(t *testing.T) {
	a, sink, _, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := a.Fill(ctx, restserver.RunRequest{Station: "A"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, gapfill.StatusStopped, results[0].Status)
	assert.Empty(t, sink.written)

	records, err := a.History(context.Background(), "A", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stopped", records[0].Status)
}

func TestFillUnknownStation(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	_, err := a.Fill(context.Background(), restserver.RunRequest{Station: "Z"}, nil)
	assert.ErrorIs(t, err, ErrUnknownStation)
}

func TestHistoryWithoutStore(t *testing.T) {
	a := NewWithSource(testConfig(), memorySource{ds: testDataset()}, "test", zap.NewNop().Sugar())
	records, err := a.History(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
	_, err = a.Run(context.Background(), "any")
	assert.ErrorIs(t, err, runstore.ErrNotFound)

	stations, err := a.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)
	assert.NoError(t, a.Health(context.Background()))
	assert.ErrorIs(t, a.Serve(context.Background()), ErrNoServer)
}

func TestParams(t *testing.T) {
	p, err := Params(config.FillData{}, "1.0")
	require.NoError(t, err)
	want := gapfill.DefaultParams()
	want.SoftwareVersion = "1.0"
	assert.Equal(t, want, p)

	p, err = Params(config.FillData{
		MaxStations:      2,
		DistanceCutoffKm: -1,
		AltitudeCutoffM:  500,
		Regression:       "lad",
		Start:            "2020-01-10",
		AddETP:           true,
	}, "1.0")
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxNeighbors)
	assert.Equal(t, -1.0, p.DistanceCutoff)
	assert.Equal(t, 500.0, p.AltitudeCutoff)
	assert.Equal(t, regression.LAD, p.Mode)
	assert.Equal(t, time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC), p.Start)
	assert.True(t, p.End.IsZero())
	assert.True(t, p.AddETP)

	_, err = Params(config.FillData{Regression: "ridge"}, "1.0")
	assert.ErrorIs(t, err, gapfill.ErrConfiguration)
	_, err = Params(config.FillData{End: "31/12/2020"}, "1.0")
	assert.ErrorIs(t, err, gapfill.ErrConfiguration)
}
