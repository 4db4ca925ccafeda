package gapfill

import (
	"math"
	"sort"
	"time"

	"github.com/chrissnell/wxgapfill/internal/weather"
)

// Header identifies the station and the parameters of a run.
type Header struct {
	Station           weather.Station `json:"station"`
	SoftwareVersion   string          `json:"software_version"`
	CreatedAt         time.Time       `json:"created_at"`
	Mode              string          `json:"mode"`
	MaxNeighbors      int             `json:"max_neighbors"`
	DistanceCutoff    float64         `json:"distance_cutoff_km"`
	AltitudeCutoff    float64         `json:"altitude_cutoff_m"`
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	FullErrorAnalysis bool            `json:"full_error_analysis"`
}

// StationUse counts how many estimates a neighbouring station contributed to.
type StationUse struct {
	Station string `json:"station"`
	Count   int    `json:"count"`
}

// VariableSummary aggregates the fill statistics of one variable over the window.
type VariableSummary struct {
	Variable     string       `json:"variable"`
	Skipped      bool         `json:"skipped"`
	Rows         int          `json:"rows"`
	Missing      int          `json:"missing"`
	Filled       int          `json:"filled"`
	Unfilled     int          `json:"unfilled"`
	AvgNeighbors float64      `json:"avg_neighbors"`
	AvgRMSE      float64      `json:"avg_rmse"`
	Usage        []StationUse `json:"usage"`
}

// Total sums the per-variable summaries.
type Total struct {
	Rows     int          `json:"rows"`
	Missing  int          `json:"missing"`
	Filled   int          `json:"filled"`
	Unfilled int          `json:"unfilled"`
	Usage    []StationUse `json:"usage"`
}

// DetailRow records one estimated (or unfillable) value. Values holds the
// observations of the contributing neighbours at that date, keyed by station name.
type DetailRow struct {
	Variable  string             `json:"variable"`
	Date      time.Time          `json:"date"`
	Neighbors int                `json:"neighbors"`
	RMSE      float64            `json:"rmse"`
	Estimate  float64            `json:"estimate"`
	Filled    bool               `json:"filled"`
	Values    map[string]float64 `json:"values,omitempty"`
}

// Report is the structured outcome of a completed run.
type Report struct {
	Header     Header            `json:"header"`
	Summaries  []VariableSummary `json:"summaries"`
	Total      Total             `json:"total"`
	Neighbors  []string          `json:"neighbors"`
	Details    []DetailRow       `json:"details"`
	Unfillable bool              `json:"unfillable"`
}

// Percent returns part as a percentage of whole rounded to 0.1, or NaN when whole is 0.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return math.NaN()
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// ErrorStats compares the leave-one-out predictions against the series for one variable.
type ErrorStats struct {
	Variable    string  `json:"variable"`
	Count       int     `json:"count"`
	RMSE        float64 `json:"rmse"`
	MaxAbsError float64 `json:"max_abs_error"`
	ErrorSum    float64 `json:"error_sum"`
}

// CacheStats reports how often fitted models were reused.
type CacheStats struct {
	Models int `json:"models"`
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// DerivedSeries is a secondary variable computed from the filled series.
type DerivedSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Result is returned by Engine.Run. A stopped run carries only Status and Station.
type Result struct {
	Status    Status          `json:"status"`
	Station   weather.Station `json:"station"`
	Variables []string        `json:"variables,omitempty"`
	Dates     []time.Time     `json:"dates,omitempty"`
	// Filled is indexed [t][v] over the full time axis.
	Filled [][]float64 `json:"filled,omitempty"`
	// Predicted is indexed [t][v]; set only by a full error analysis.
	Predicted [][]float64     `json:"predicted,omitempty"`
	Report    *Report         `json:"report,omitempty"`
	Errors    []ErrorStats    `json:"errors,omitempty"`
	Derived   *DerivedSeries  `json:"derived,omitempty"`
	Cache     CacheStats      `json:"cache"`
}

// FilledCount returns the total number of estimated values.
func (r *Result) FilledCount() int {
	if r.Report == nil {
		return 0
	}
	return r.Report.Total.Filled
}

// rankNeighbors orders the neighbours that contributed at least once by total
// usage, descending; equal totals keep their station order.
func rankNeighbors(totals []int) []int {
	idx := make([]int, 0, len(totals))
	for i, n := range totals {
		if n > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return totals[idx[a]] > totals[idx[b]]
	})
	return idx
}

// errorStats computes leave-one-out error metrics over rows where both the
// prediction and the series hold a value. Exactly-zero errors are excluded
// from the RMSE; when all errors are zero the RMSE is 0, not NaN.
func errorStats(name string, predicted, observed []float64) ErrorStats {
	st := ErrorStats{Variable: name}
	sq, nsq := 0.0, 0
	for i := range predicted {
		if weather.IsMissing(predicted[i]) || weather.IsMissing(observed[i]) {
			continue
		}
		e := predicted[i] - observed[i]
		st.Count++
		st.ErrorSum += e
		st.MaxAbsError = math.Max(st.MaxAbsError, math.Abs(e))
		if e != 0 {
			sq += e * e
			nsq++
		}
	}
	if nsq > 0 {
		st.RMSE = math.Sqrt(sq / float64(nsq))
	}
	return st
}
