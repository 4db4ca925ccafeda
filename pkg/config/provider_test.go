package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
fill:
  max_stations: 3
  distance_cutoff_km: 80
  altitude_cutoff_m: 200
  regression: lad
  start: "1990-01-01"
  end: "1999-12-31"
  add_etp: true
storage:
  timescaledb:
    connection-string: "postgres://wx@localhost/weather"
    connect-timeout: 30s
    write-results: true
  run_history:
    path: /var/lib/wxgapfill/runs.db
  export:
    directory: /var/lib/wxgapfill/out
server:
  listen-addr: 127.0.0.1
  port: 8090
`

func sampleConfig() *ConfigData {
	return &ConfigData{
		Fill: FillData{
			MaxStations:      3,
			DistanceCutoffKm: 80,
			AltitudeCutoffM:  200,
			Regression:       "lad",
			Start:            "1990-01-01",
			End:              "1999-12-31",
			AddETP:           true,
		},
		Storage: StorageData{
			TimescaleDB: &TimescaleDBData{
				ConnectionString: "postgres://wx@localhost/weather",
				ConnectTimeout:   "30s",
				WriteResults:     true,
			},
			RunHistory: &RunHistoryData{Path: "/var/lib/wxgapfill/runs.db"},
			Export:     &ExportData{Directory: "/var/lib/wxgapfill/out"},
		},
		Server: &ServerData{ListenAddr: "127.0.0.1", Port: 8090},
	}
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	p := NewYAMLProvider(path)
	defer p.Close()
	assert.True(t, p.IsReadOnly())

	fill, err := p.GetFillConfig()
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Fill, *fill)

	storage, err := p.GetStorageConfig()
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Storage, *storage)

	srv, err := p.GetServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 8090, srv.Port)
}

func TestYAMLProviderMissingFile(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := p.LoadConfig()
	assert.Error(t, err)
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.IsReadOnly())

	empty, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, FillData{}, empty.Fill)
	assert.Nil(t, empty.Server)
	assert.Nil(t, empty.Storage.TimescaleDB)

	want := sampleConfig()
	require.NoError(t, p.SaveConfig(want))
	got, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Saving again replaces rather than appends.
	want.Server = nil
	want.Storage.Export = nil
	want.Fill.MaxStations = 6
	require.NoError(t, p.SaveConfig(want))
	got, err = p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFillWindow(t *testing.T) {
	f := FillData{Start: "1990-01-01", End: "1999-12-31"}
	start, end, err := f.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), end)

	start, end, err = (&FillData{}).Window()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
	assert.True(t, end.IsZero())

	_, _, err = (&FillData{Start: "01/01/1990"}).Window()
	assert.Error(t, err)
}

func TestTimescaleTimeout(t *testing.T) {
	d, err := (&TimescaleDBData{}).Timeout(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = (&TimescaleDBData{ConnectTimeout: "30s"}).Timeout(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}
