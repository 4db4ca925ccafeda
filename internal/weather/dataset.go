// Package weather holds the multi-station daily observation cube that the gap-fill
// engine works on, along with the station metadata and the target selector that
// ranks neighbours of a station.
package weather

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TemperatureVariables is the number of leading variables that are temperature-type.
// Variables at positions >= TemperatureVariables are precipitation-type.
const TemperatureVariables = 3

// DefaultVariables is the variable layout produced by the TimescaleDB provider.
var DefaultVariables = []string{
	"Max Temp (deg C)",
	"Min Temp (deg C)",
	"Mean Temp (deg C)",
	"Total Precip (mm)",
}

// Missing returns the sentinel used for a missing observation.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// IsTemperature reports whether variable position v is a temperature-type variable.
func IsTemperature(v int) bool {
	return v < TemperatureVariables
}

// Station describes one weather station. Name is unique within a Dataset.
type Station struct {
	Name      string  `json:"name"`
	Province  string  `json:"province"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	ClimateID string  `json:"climate_id"`
}

// Dataset is a daily observation cube indexed by time, station and variable.
// The time axis is contiguous; gaps are stored as missing values, never as
// missing days.
type Dataset struct {
	Dates     []time.Time
	Stations  []Station
	Variables []string

	values []float64
}

// NewDataset allocates a dataset with every value set to missing.
func NewDataset(dates []time.Time, stations []Station, variables []string) *Dataset {
	ds := &Dataset{
		Dates:     dates,
		Stations:  stations,
		Variables: variables,
		values:    make([]float64, len(dates)*len(stations)*len(variables)),
	}
	for i := range ds.values {
		ds.values[i] = math.NaN()
	}
	return ds
}

// DailyAxis returns every UTC midnight from start to end inclusive.
func DailyAxis(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil
	}
	dates := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (ds *Dataset) offset(t, s, v int) int {
	return (t*len(ds.Stations)+s)*len(ds.Variables) + v
}

// Rows returns the length of the time axis.
func (ds *Dataset) Rows() int { return len(ds.Dates) }

// At returns the value at time t, station s, variable v.
func (ds *Dataset) At(t, s, v int) float64 {
	return ds.values[ds.offset(t, s, v)]
}

// Set stores a value at time t, station s, variable v.
func (ds *Dataset) Set(t, s, v int, value float64) {
	ds.values[ds.offset(t, s, v)] = value
}

// Series copies the full time series of one station and variable.
func (ds *Dataset) Series(s, v int) []float64 {
	out := make([]float64, len(ds.Dates))
	for t := range ds.Dates {
		out[t] = ds.At(t, s, v)
	}
	return out
}

// SetSeries overwrites the time series of one station and variable.
func (ds *Dataset) SetSeries(s, v int, series []float64) error {
	if len(series) != len(ds.Dates) {
		return fmt.Errorf("series length %d does not match time axis length %d", len(series), len(ds.Dates))
	}
	for t, value := range series {
		ds.Set(t, s, v, value)
	}
	return nil
}

// Clone returns a deep copy of the dataset.
func (ds *Dataset) Clone() *Dataset {
	c := &Dataset{
		Dates:     append([]time.Time(nil), ds.Dates...),
		Stations:  append([]Station(nil), ds.Stations...),
		Variables: append([]string(nil), ds.Variables...),
		values:    append([]float64(nil), ds.values...),
	}
	return c
}

// StationIndex returns the position of the named station.
func (ds *Dataset) StationIndex(name string) (int, bool) {
	for i, st := range ds.Stations {
		if st.Name == name {
			return i, true
		}
	}
	return -1, false
}

// DateIndex returns the position of the calendar day of t on the time axis. The
// day is read in t's own location and matched against the axis days in the
// axis location, so local-midnight axes and DST days resolve correctly.
func (ds *Dataset) DateIndex(t time.Time) (int, bool) {
	if len(ds.Dates) == 0 {
		return -1, false
	}
	y, m, d := t.Date()
	fy, fm, fd := ds.Dates[0].Date()
	i := daysBetween(time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC), time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if i < 0 || i >= len(ds.Dates) {
		return -1, false
	}
	if ay, am, ad := ds.Dates[i].Date(); ay != y || am != m || ad != d {
		return -1, false
	}
	return i, true
}

// daysBetween counts calendar days between two UTC midnights.
func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// CountMissing returns the number of missing values for station s, variable v
// between rows start and end inclusive.
func (ds *Dataset) CountMissing(s, v, start, end int) int {
	n := 0
	for t := start; t <= end; t++ {
		if IsMissing(ds.At(t, s, v)) {
			n++
		}
	}
	return n
}

// Validate checks the structural invariants the engine relies on.
func (ds *Dataset) Validate() error {
	if len(ds.Stations) == 0 {
		return errors.New("dataset has no stations")
	}
	if len(ds.Variables) == 0 {
		return errors.New("dataset has no variables")
	}
	if len(ds.values) != len(ds.Dates)*len(ds.Stations)*len(ds.Variables) {
		return fmt.Errorf("dataset holds %d values, expected %d", len(ds.values), len(ds.Dates)*len(ds.Stations)*len(ds.Variables))
	}

	seen := make(map[string]struct{}, len(ds.Stations))
	for _, st := range ds.Stations {
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("duplicate station name %q", st.Name)
		}
		seen[st.Name] = struct{}{}
	}

	for i := 1; i < len(ds.Dates); i++ {
		if !ds.Dates[i].Equal(ds.Dates[i-1].AddDate(0, 0, 1)) {
			return fmt.Errorf("time axis is not a contiguous daily sequence at %s", ds.Dates[i].Format(time.DateOnly))
		}
	}
	return nil
}
