package restserver

import (
	"math"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/runstore"
)

// nullable maps NaN and infinities to nil so that the value encodes as JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullableSlice(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = nullable(v)
	}
	return out
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}

func transformSummary(res *gapfill.Result) ResultSummary {
	s := ResultSummary{
		Station: res.Station.Name,
		Status:  string(res.Status),
	}
	if res.Report != nil {
		s.Missing = res.Report.Total.Missing
		s.Filled = res.Report.Total.Filled
		s.Unfilled = res.Report.Total.Unfilled
	}
	return s
}

// transformResult converts an engine result into its report view.
func transformResult(res *gapfill.Result) ResultView {
	view := ResultView{
		Station:   res.Station,
		Status:    string(res.Status),
		Variables: res.Variables,
		Dates:     formatDates(res.Dates),
	}

	for _, row := range res.Filled {
		view.Filled = append(view.Filled, nullableSlice(row))
	}
	for _, row := range res.Predicted {
		view.Predicted = append(view.Predicted, nullableSlice(row))
	}
	if res.Derived != nil {
		view.Derived = map[string][]*float64{res.Derived.Name: nullableSlice(res.Derived.Values)}
	}

	for _, e := range res.Errors {
		view.Errors = append(view.Errors, ErrorStatsView{
			Variable:    e.Variable,
			Count:       e.Count,
			RMSE:        nullable(e.RMSE),
			MaxAbsError: nullable(e.MaxAbsError),
			ErrorSum:    nullable(e.ErrorSum),
		})
	}

	if res.Report != nil {
		view.ReportView = transformReport(res.Report)
	}
	return view
}

// transformReport converts a fill report, mapping NaN statistics to null.
func transformReport(rep *gapfill.Report) ReportView {
	view := ReportView{
		Mode:       rep.Header.Mode,
		Start:      rep.Header.Start.Format(time.DateOnly),
		End:        rep.Header.End.Format(time.DateOnly),
		Neighbors:  rep.Neighbors,
		Unfillable: rep.Unfillable,
	}

	for _, s := range rep.Summaries {
		sv := VariableSummaryView{
			Variable:     s.Variable,
			Skipped:      s.Skipped,
			Rows:         s.Rows,
			Missing:      s.Missing,
			Filled:       s.Filled,
			Unfilled:     s.Unfilled,
			FilledPct:    nullable(gapfill.Percent(s.Filled, s.Missing)),
			AvgNeighbors: nullable(s.AvgNeighbors),
			AvgRMSE:      nullable(s.AvgRMSE),
		}
		if len(s.Usage) > 0 {
			sv.Usage = make(map[string]int, len(s.Usage))
			for _, u := range s.Usage {
				sv.Usage[u.Station] = u.Count
			}
		}
		view.Summaries = append(view.Summaries, sv)
	}

	for _, d := range rep.Details {
		dv := DetailView{
			Variable:  d.Variable,
			Date:      d.Date.Format(time.DateOnly),
			Neighbors: d.Neighbors,
			RMSE:      nullable(d.RMSE),
			Estimate:  nullable(d.Estimate),
			Filled:    d.Filled,
		}
		if len(d.Values) > 0 {
			dv.Values = make(map[string]*float64, len(d.Values))
			for name, v := range d.Values {
				dv.Values[name] = nullable(v)
			}
		}
		view.Details = append(view.Details, dv)
	}

	return view
}

func transformRecord(rec *runstore.Record) RunRecordView {
	view := RunRecordView{
		ID:                rec.ID,
		Station:           rec.Station,
		Status:            rec.Status,
		Mode:              rec.Mode,
		FullErrorAnalysis: rec.FullErrorAnalysis,
		StartedAt:         rec.StartedAt,
		FinishedAt:        rec.FinishedAt,
		Missing:           rec.Missing,
		Filled:            rec.Filled,
		Unfilled:          rec.Unfilled,
		Fingerprint:       rec.Fingerprint,
		Error:             rec.Error,
	}
	if rec.Report != nil {
		rv := transformReport(rec.Report)
		view.Report = &rv
	}
	return view
}
