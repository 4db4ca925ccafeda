package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetFillConfig() (*FillData, error)
	GetStorageConfig() (*StorageData, error)
	GetServerConfig() (*ServerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Fill    FillData    `json:"fill" yaml:"fill"`
	Storage StorageData `json:"storage,omitempty" yaml:"storage,omitempty"`
	Server  *ServerData `json:"server,omitempty" yaml:"server,omitempty"`
}

// FillData holds the gap-fill run parameters.
type FillData struct {
	MaxStations       int     `json:"max_stations,omitempty" yaml:"max_stations,omitempty"`
	DistanceCutoffKm  float64 `json:"distance_cutoff_km,omitempty" yaml:"distance_cutoff_km,omitempty"`
	AltitudeCutoffM   float64 `json:"altitude_cutoff_m,omitempty" yaml:"altitude_cutoff_m,omitempty"`
	Regression        string  `json:"regression,omitempty" yaml:"regression,omitempty"`
	Start             string  `json:"start,omitempty" yaml:"start,omitempty"`
	End               string  `json:"end,omitempty" yaml:"end,omitempty"`
	FullErrorAnalysis bool    `json:"full_error_analysis,omitempty" yaml:"full_error_analysis,omitempty"`
	AddETP            bool    `json:"add_etp,omitempty" yaml:"add_etp,omitempty"`
	MinPairs          int     `json:"min_pairs,omitempty" yaml:"min_pairs,omitempty"`
}

// Window parses the Start and End dates. Empty values return the zero time.
func (f *FillData) Window() (time.Time, time.Time, error) {
	start, err := parseDate(f.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid fill start %q: %w", f.Start, err)
	}
	end, err := parseDate(f.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid fill end %q: %w", f.End, err)
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// StorageData holds the configuration for the storage backends
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
	RunHistory  *RunHistoryData  `json:"run_history,omitempty" yaml:"run_history,omitempty"`
	Export      *ExportData      `json:"export,omitempty" yaml:"export,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection-string"`
	// ConnectTimeout bounds the connection retries, as a Go duration string.
	ConnectTimeout string `json:"connect_timeout,omitempty" yaml:"connect-timeout,omitempty"`
	WriteResults   bool   `json:"write_results,omitempty" yaml:"write-results,omitempty"`
}

// Timeout returns the parsed ConnectTimeout, or def when unset.
func (t *TimescaleDBData) Timeout(def time.Duration) (time.Duration, error) {
	if t.ConnectTimeout == "" {
		return def, nil
	}
	return time.ParseDuration(t.ConnectTimeout)
}

type RunHistoryData struct {
	Path string `json:"path" yaml:"path"`
}

type ExportData struct {
	Directory string `json:"directory" yaml:"directory"`
}

// ServerData holds the HTTP API listener configuration
type ServerData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen-addr,omitempty"`
}
