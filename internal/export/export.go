// Package export writes gap-fill results as tab-delimited artifacts: the filled
// series (.out), the fill log (.log) and the full error analysis (.err).
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/weather"
)

// Paths lists the files written for one result. ErrorAnalysis is empty when no
// full error analysis was run.
type Paths struct {
	Series        string `json:"series"`
	Log           string `json:"log"`
	ErrorAnalysis string `json:"error_analysis,omitempty"`
}

// Exporter writes artifacts into a directory.
type Exporter struct {
	Dir string
}

// New returns an exporter for dir, creating it if needed.
func New(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &Exporter{Dir: dir}, nil
}

// FileBase is the artifact name without extension:
// "<station> (<climate id>)_<first year>-<last year>".
func FileBase(station weather.Station, start, end time.Time) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(station.Name)
	return fmt.Sprintf("%s (%s)_%d-%d", name, station.ClimateID, start.Year(), end.Year())
}

// Write stores the artifacts of a completed result.
func (e *Exporter) Write(res *gapfill.Result) (Paths, error) {
	if res.Status != gapfill.StatusCompleted || res.Report == nil {
		return Paths{}, fmt.Errorf("result for %q is not a completed run", res.Station.Name)
	}
	base := filepath.Join(e.Dir, FileBase(res.Station, res.Report.Header.Start, res.Report.Header.End))
	paths := Paths{Series: base + ".out", Log: base + ".log"}

	if err := writeFile(paths.Series, func(w io.Writer) error { return WriteSeries(w, res) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(paths.Log, func(w io.Writer) error { return WriteLog(w, res) }); err != nil {
		return Paths{}, err
	}
	if res.Predicted != nil {
		paths.ErrorAnalysis = base + ".err"
		if err := writeFile(paths.ErrorAnalysis, func(w io.Writer) error { return WriteErrorAnalysis(w, res) }); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func headerRows(h gapfill.Header) [][]string {
	return [][]string{
		{"Station Name", h.Station.Name},
		{"Province", h.Station.Province},
		{"Latitude", formatValue(h.Station.Latitude, 2)},
		{"Longitude", formatValue(h.Station.Longitude, 2)},
		{"Elevation", formatValue(h.Station.Altitude, 2)},
		{"Climate Identifier", h.Station.ClimateID},
		{},
		{"Created by", h.SoftwareVersion},
		{"Created on", h.CreatedAt.Format("02/01/2006")},
		{},
	}
}

func dateColumns(d time.Time) []string {
	return []string{strconv.Itoa(d.Year()), strconv.Itoa(int(d.Month())), strconv.Itoa(d.Day())}
}

// WriteSeries writes the filled series over the fill window.
func WriteSeries(w io.Writer, res *gapfill.Result) error {
	cw := newWriter(w)
	h := res.Report.Header
	rows := headerRows(h)
	rows = append(rows, append([]string{"Year", "Month", "Day"}, res.Variables...))
	for t, d := range res.Dates {
		if d.Before(h.Start) || d.After(h.End) {
			continue
		}
		row := dateColumns(d)
		for v := range res.Variables {
			row = append(row, formatValue(res.Filled[t][v], 1))
		}
		rows = append(rows, row)
	}
	return writeAll(cw, rows)
}

// WriteErrorAnalysis writes the leave-one-out predictions over the full axis,
// followed by the error metrics of each variable.
func WriteErrorAnalysis(w io.Writer, res *gapfill.Result) error {
	cw := newWriter(w)
	rows := headerRows(res.Report.Header)
	rows = append(rows, append([]string{"Year", "Month", "Day"}, res.Variables...))
	for t, d := range res.Dates {
		row := dateColumns(d)
		for v := range res.Variables {
			row = append(row, formatValue(res.Predicted[t][v], 1))
		}
		rows = append(rows, row)
	}

	rows = append(rows, []string{}, []string{"VARIABLE", "COUNT", "RMSE", "MAX ABS ERROR", "ERROR SUM"})
	for _, st := range res.Errors {
		rows = append(rows, []string{st.Variable, strconv.Itoa(st.Count),
			formatValue(st.RMSE, 2), formatValue(st.MaxAbsError, 1), formatValue(st.ErrorSum, 1)})
	}
	return writeAll(cw, rows)
}

// WriteLog writes the fill report: procedure parameters, summary table and the
// detailed list of estimated values.
func WriteLog(w io.Writer, res *gapfill.Result) error {
	cw := newWriter(w)
	r := res.Report
	h := r.Header

	rows := headerRows(h)
	mode := "Ordinary Least Square"
	if h.Mode == "LAD" {
		mode = "Least Absolute Deviations"
	}
	rows = append(rows,
		[]string{"*** FILL PROCEDURE INFO ***"},
		[]string{},
		[]string{"MLR model", mode},
		[]string{"Max number of stations", strconv.Itoa(h.MaxNeighbors)},
		[]string{"Cutoff distance (km)", formatValue(h.DistanceCutoff, 1)},
		[]string{"Cutoff altitude difference (m)", formatValue(h.AltitudeCutoff, 1)},
		[]string{"Date Start", h.Start.Format("2006/01/02")},
		[]string{"Date End", h.End.Format("2006/01/02")},
		[]string{},
		[]string{},
		[]string{"*** SUMMARY TABLE ***"},
		[]string{},
		append([]string{"CLIMATE VARIABLE", "TOTAL MISSING", "TOTAL FILLED", "", "AVG. NBR STA.", "AVG. RMSE", ""}, r.Neighbors...),
	)

	for _, s := range r.Summaries {
		row := []string{
			s.Variable,
			fmt.Sprintf("%d (%s %% of total)", s.Missing, formatValue(gapfill.Percent(s.Missing, s.Rows), 1)),
			fmt.Sprintf("%d (%s %% of missing)", s.Filled, formatValue(gapfill.Percent(s.Filled, s.Missing), 1)),
			"",
			formatValue(s.AvgNeighbors, 1),
			formatValue(s.AvgRMSE, 2),
			"",
		}
		for _, u := range s.Usage {
			row = append(row, fmt.Sprintf("%d (%s %% of filled)", u.Count, formatValue(gapfill.Percent(u.Count, s.Filled), 1)))
		}
		if s.Skipped {
			row = append(row[:7], "not filled, insufficient data")
		}
		rows = append(rows, row)
	}

	total := []string{
		"TOTAL",
		fmt.Sprintf("%d (%s %% of total)", r.Total.Missing, formatValue(gapfill.Percent(r.Total.Missing, r.Total.Rows), 1)),
		fmt.Sprintf("%d (%s %% of missing)", r.Total.Filled, formatValue(gapfill.Percent(r.Total.Filled, r.Total.Missing), 1)),
		"", "---", "---", "",
	}
	for _, u := range r.Total.Usage {
		total = append(total, fmt.Sprintf("%d (%s %% of filled)", u.Count, formatValue(gapfill.Percent(u.Count, r.Total.Filled), 1)))
	}
	rows = append(rows, []string{}, total, []string{}, []string{},
		[]string{"*** DETAILED REPORT ***"},
		[]string{},
		append([]string{"VARIABLE", "YEAR", "MONTH", "DAY", "NBR STA.", "RMSE", h.Station.Name}, r.Neighbors...),
	)

	for _, d := range r.Details {
		row := []string{d.Variable}
		row = append(row, dateColumns(d.Date)...)
		if d.Filled {
			row = append(row, strconv.Itoa(d.Neighbors))
		} else {
			row = append(row, "nan")
		}
		row = append(row, formatValue(d.RMSE, 2), formatValue(d.Estimate, 1))
		for _, name := range r.Neighbors {
			if v, ok := d.Values[name]; ok {
				row = append(row, formatValue(v, 1))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}

	if r.Unfillable {
		rows = append(rows, []string{}, []string{"WARNING: Some missing data were not completed because all neighboring stations were empty for that period"})
	}
	return writeAll(cw, rows)
}

func writeAll(cw *csv.Writer, rows [][]string) error {
	return cw.WriteAll(rows)
}

func formatValue(v float64, prec int) string {
	if weather.IsMissing(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
