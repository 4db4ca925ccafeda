package gapfill

import (
	"time"

	"github.com/chrissnell/wxgapfill/internal/regression"
	"github.com/chrissnell/wxgapfill/internal/weather"
)

const (
	DefaultMaxNeighbors   = 4
	DefaultDistanceCutoff = 100.0
	DefaultAltitudeCutoff = 350.0
)

// Params controls one gap-fill run. A cutoff <= 0 disables that criterion.
// A zero Start or End selects the first or last day of the dataset.
type Params struct {
	MaxNeighbors      int
	DistanceCutoff    float64 // km
	AltitudeCutoff    float64 // m
	Mode              regression.Mode
	Start             time.Time
	End               time.Time
	FullErrorAnalysis bool
	AddETP            bool
	SoftwareVersion   string
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		MaxNeighbors:   DefaultMaxNeighbors,
		DistanceCutoff: DefaultDistanceCutoff,
		AltitudeCutoff: DefaultAltitudeCutoff,
		Mode:           regression.OLS,
	}
}

// window resolves the fill window to inclusive row indices on the dataset's time axis.
func (p Params) window(ds *weather.Dataset) (int, int, error) {
	if p.MaxNeighbors < 1 {
		return 0, 0, &ConfigError{Field: "max_neighbors", Reason: "must be at least 1"}
	}
	if ds.Rows() == 0 {
		return 0, 0, &ConfigError{Field: "dataset", Reason: "time axis is empty"}
	}

	start, end := 0, ds.Rows()-1
	if !p.Start.IsZero() {
		i, ok := ds.DateIndex(p.Start)
		if !ok {
			return 0, 0, &ConfigError{Field: "start", Reason: p.Start.Format(time.DateOnly) + " is not on the time axis"}
		}
		start = i
	}
	if !p.End.IsZero() {
		i, ok := ds.DateIndex(p.End)
		if !ok {
			return 0, 0, &ConfigError{Field: "end", Reason: p.End.Format(time.DateOnly) + " is not on the time axis"}
		}
		end = i
	}
	if start > end {
		return 0, 0, &ConfigError{Field: "start", Reason: "fill window starts after it ends"}
	}
	return start, end, nil
}
