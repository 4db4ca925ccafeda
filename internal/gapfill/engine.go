// Package gapfill estimates the missing daily values of a target station by multiple
// linear regression against its best-correlated neighbours.
package gapfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrissnell/wxgapfill/internal/regression"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"go.uber.org/zap"
)

// Deriver computes a secondary variable from a filled series once a run completes.
type Deriver interface {
	Name() string
	Derive(station weather.Station, dates []time.Time, variables []string, filled [][]float64) ([]float64, error)
}

// Engine runs gap-fill jobs one at a time. It holds no state between runs: the
// stop flag only arms while a Run or FillAll is in progress and is cleared when
// the outermost one returns.
type Engine struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	deriver  Deriver
	now      func() time.Time

	mu   sync.Mutex
	stop atomic.Bool

	activeMu sync.Mutex
	active   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the receiver of progress and status events.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithDeriver sets the hook used when Params.AddETP is requested.
func WithDeriver(d Deriver) Option {
	return func(e *Engine) { e.deriver = d }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(logger *zap.SugaredLogger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		logger:   logger,
		notifier: nopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stop asks the run in progress to stop at its next row. Inside FillAll the
// remaining stations are skipped too. It does nothing while the engine is idle.
func (e *Engine) Stop() {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if e.active > 0 {
		e.stop.Store(true)
	}
}

func (e *Engine) begin() {
	e.activeMu.Lock()
	e.active++
	e.activeMu.Unlock()
}

func (e *Engine) end() {
	e.activeMu.Lock()
	e.active--
	if e.active == 0 {
		e.stop.Store(false)
	}
	e.activeMu.Unlock()
}

// Run fills the missing values of the target station inside the window of p.
// Configuration problems are returned as errors matching ErrConfiguration before
// any work starts. Cancellation through ctx or Stop yields a Result with
// StatusStopped and a nil error.
func (e *Engine) Run(ctx context.Context, ds *weather.Dataset, target *weather.Target, p Params) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begin()
	defer e.end()

	if err := checkInputs(ds, target); err != nil {
		return nil, err
	}
	start, end, err := p.window(ds)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine: e,
		ds:     ds.Clone(),
		target: target.Clone(),
		p:      p,
		start:  start,
		end:    end,
	}
	r.station = r.ds.Stations[r.target.Index]
	return r.execute(ctx), nil
}

func checkInputs(ds *weather.Dataset, target *weather.Target) error {
	if ds == nil {
		return &ConfigError{Field: "dataset", Reason: "no dataset"}
	}
	if err := ds.Validate(); err != nil {
		return &ConfigError{Field: "dataset", Reason: err.Error()}
	}
	if target == nil {
		return &ConfigError{Field: "target", Reason: "no target station"}
	}
	n := len(ds.Stations)
	if target.Index < 0 || target.Index >= n {
		return &ConfigError{Field: "target", Reason: fmt.Sprintf("index %d out of range", target.Index)}
	}
	if len(target.CorrCoef) != len(ds.Variables) {
		return &ConfigError{Field: "target", Reason: "correlation matrix does not match the variable set"}
	}
	for _, row := range target.CorrCoef {
		if len(row) != n {
			return &ConfigError{Field: "target", Reason: "correlation matrix does not match the station set"}
		}
	}
	if len(target.HorDist) != n || len(target.AltDiff) != n {
		return &ConfigError{Field: "target", Reason: "distance arrays do not match the station set"}
	}
	return nil
}

// run holds the private state of one Engine.Run call.
type run struct {
	engine  *Engine
	ds      *weather.Dataset
	target  *weather.Target
	station weather.Station
	p       Params

	start, end int

	// stations maps filtered positions to dataset station indices.
	stations []int
	// self is the target's position in stations.
	self int
	corr [][]float64

	filled    [][]float64
	predicted [][]float64

	missing    []int
	nFilled    []int
	sumRMSE    []float64
	sumNeigh   []float64
	usage      [][]int
	details    []DetailRow
	unfillable bool
	skipped    []bool
	cache      CacheStats

	total, done, lastPct int
}

func (r *run) notify(kind EventKind, msg string) {
	r.engine.emit(Event{Kind: kind, Station: r.station.Name, Message: msg})
}

func (e *Engine) emit(ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Errorf("notifier panicked: %v", rec)
		}
	}()
	ev.Time = e.now()
	e.notifier.Notify(ev)
}

func (r *run) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || r.engine.stop.Load()
}

func (r *run) execute(ctx context.Context) *Result {
	r.notify(EventInfo, fmt.Sprintf("Data completion for station %s started", r.station.Name))
	r.engine.logger.Infow("gap-fill run started", "station", r.station.Name, "mode", r.p.Mode.String(),
		"full_error_analysis", r.p.FullErrorAnalysis)

	r.filterStations()
	fillable := r.fillableVariables()
	r.prepare(fillable)

	if r.stopped(ctx) {
		return r.stoppedResult()
	}
	for _, v := range fillable {
		r.notify(EventInfo, fmt.Sprintf("Data completion for variable %d/%d in progress", v+1, len(r.ds.Variables)))
		if !r.fillVariable(ctx, v) {
			return r.stoppedResult()
		}
	}
	return r.finish()
}

func (r *run) stoppedResult() *Result {
	r.notify(EventWarning, fmt.Sprintf("Completion process for station %s stopped", r.station.Name))
	r.engine.logger.Infow("gap-fill run stopped", "station", r.station.Name)
	return &Result{Status: StatusStopped, Station: r.station}
}

// filterStations applies the distance and altitude cutoffs and re-indexes the target.
func (r *run) filterStations() {
	mask := InclusionMask(r.target.HorDist, r.target.AltDiff, r.p.DistanceCutoff, r.p.AltitudeCutoff, r.target.Index)
	for s, ok := range mask {
		if !ok {
			continue
		}
		if s == r.target.Index {
			r.self = len(r.stations)
		}
		r.stations = append(r.stations, s)
	}

	r.corr = make([][]float64, len(r.ds.Variables))
	for v := range r.ds.Variables {
		row := make([]float64, len(r.stations))
		for k, s := range r.stations {
			row[k] = r.target.CorrCoef[v][s]
		}
		r.corr[v] = row
	}
}

// fillableVariables returns the variables with at least two usable stations,
// the target included, and warns once for each of the others.
func (r *run) fillableVariables() []int {
	r.skipped = make([]bool, len(r.ds.Variables))
	var fillable []int
	for v, name := range r.ds.Variables {
		if usableStations(r.corr[v]) > 1 {
			fillable = append(fillable, v)
			continue
		}
		r.skipped[v] = true
		r.notify(EventWarning, fmt.Sprintf("Variable %d/%d (%s) won't be filled because there is not enough data",
			v+1, len(r.ds.Variables), name))
	}
	return fillable
}

func (r *run) prepare(fillable []int) {
	nv := len(r.ds.Variables)
	rows := r.ds.Rows()
	ti := r.target.Index

	r.filled = make([][]float64, rows)
	for t := range r.filled {
		r.filled[t] = make([]float64, nv)
		for v := 0; v < nv; v++ {
			r.filled[t][v] = r.ds.At(t, ti, v)
		}
	}
	if r.p.FullErrorAnalysis {
		r.predicted = make([][]float64, rows)
		for t := range r.predicted {
			r.predicted[t] = make([]float64, nv)
			for v := range r.predicted[t] {
				r.predicted[t][v] = weather.Missing()
			}
		}
	}

	r.missing = make([]int, nv)
	r.nFilled = make([]int, nv)
	r.sumRMSE = make([]float64, nv)
	r.sumNeigh = make([]float64, nv)
	r.usage = make([][]int, nv)
	for v := range r.usage {
		r.usage[v] = make([]int, len(r.stations))
		r.missing[v] = r.ds.CountMissing(ti, v, r.start, r.end)
	}

	for _, v := range fillable {
		if r.p.FullErrorAnalysis {
			r.total += rows
		} else {
			r.total += r.missing[v]
		}
	}
	r.lastPct = -1
}

func (r *run) step() {
	r.done++
	if r.total == 0 {
		return
	}
	pct := r.done * 100 / r.total
	if pct == r.lastPct {
		return
	}
	r.lastPct = pct
	r.engine.emit(Event{Kind: EventProgress, Station: r.station.Name, Progress: float64(pct)})
}

// fillVariable estimates the candidate rows of one variable. It returns false
// when the run was stopped.
func (r *run) fillVariable(ctx context.Context, v int) bool {
	order := RankStations(r.corr[v], r.self)
	cols := make([][]float64, len(order))
	ids := make([]int, len(order))
	for j, k := range order {
		ids[j] = r.stations[k]
		cols[j] = r.ds.Series(ids[j], v)
	}

	var cache *modelCache
	if !r.p.FullErrorAnalysis {
		cache = newModelCache()
	}
	intercept := weather.IsTemperature(v)

	for _, row := range r.candidateRows(cols[0]) {
		if r.stopped(ctx) {
			return false
		}
		wanted := row >= r.start && row <= r.end && weather.IsMissing(cols[0][row])

		combo := []int{0}
		for j := 1; j < len(cols) && len(combo)-1 < r.p.MaxNeighbors; j++ {
			if !weather.IsMissing(cols[j][row]) {
				combo = append(combo, j)
			}
		}
		if len(combo) == 1 {
			if wanted {
				r.markUnfillable(v, row)
			}
			r.step()
			continue
		}

		exclude := -1
		if r.p.FullErrorAnalysis {
			exclude = row
		}
		fit := func() model { return r.fit(cols, combo, intercept, exclude) }

		var m model
		if cache != nil {
			key := make([]int, len(combo))
			for i, j := range combo {
				key[i] = ids[j]
			}
			m = cache.get(comboKey(key), fit)
		} else {
			m = fit()
		}
		if m.err != nil {
			if !errors.Is(m.err, regression.ErrEmptySample) {
				r.engine.logger.Warnw("regression fit failed", "station", r.station.Name, "variable", v, "error", m.err)
			}
			if wanted {
				r.markUnfillable(v, row)
			}
			r.step()
			continue
		}

		xrow := predictors(cols, combo, row, intercept)
		y := regression.Predict(xrow, m.coef)
		if !intercept {
			y = math.Max(y, 0)
		}
		y = math.Round(y*10) / 10

		if r.predicted != nil {
			r.predicted[row][v] = y
		}
		if wanted {
			r.record(v, row, y, m.rmse, combo, order, cols)
		}
		r.step()
	}

	if cache != nil {
		r.cache.Models += cache.len()
		r.cache.Hits += cache.hits
		r.cache.Misses += cache.misses
	}
	return true
}

// candidateRows lists the rows to estimate: the target's missing rows inside the
// window, or every row for a full error analysis.
func (r *run) candidateRows(target []float64) []int {
	var rows []int
	if r.p.FullErrorAnalysis {
		rows = make([]int, len(target))
		for t := range rows {
			rows[t] = t
		}
		return rows
	}
	for t := r.start; t <= r.end; t++ {
		if weather.IsMissing(target[t]) {
			rows = append(rows, t)
		}
	}
	return rows
}

// fit builds the regression sample for one station combination and solves it.
// Rows with any missing value are dropped, as is the excluded row. For
// precipitation, rows that are zero at every station are dropped too.
func (r *run) fit(cols [][]float64, combo []int, intercept bool, exclude int) model {
	var x [][]float64
	var y []float64
	for t := range cols[0] {
		if t == exclude {
			continue
		}
		complete, allZero := true, true
		for _, j := range combo {
			val := cols[j][t]
			if weather.IsMissing(val) {
				complete = false
				break
			}
			if val != 0 {
				allZero = false
			}
		}
		if !complete || (!intercept && allZero) {
			continue
		}
		x = append(x, predictors(cols, combo, t, intercept))
		y = append(y, cols[0][t])
	}

	coef, err := regression.Fit(r.p.Mode, x, y)
	if err != nil {
		return model{err: err}
	}
	return model{coef: coef, rmse: regression.RMSE(x, y, coef)}
}

func predictors(cols [][]float64, combo []int, row int, intercept bool) []float64 {
	x := make([]float64, 0, len(combo))
	if intercept {
		x = append(x, 1)
	}
	for _, j := range combo[1:] {
		x = append(x, cols[j][row])
	}
	return x
}

func (r *run) markUnfillable(v, row int) {
	r.unfillable = true
	r.details = append(r.details, DetailRow{
		Variable: r.ds.Variables[v],
		Date:     r.ds.Dates[row],
		RMSE:     math.NaN(),
		Estimate: math.NaN(),
	})
}

func (r *run) record(v, row int, y, rmse float64, combo, order []int, cols [][]float64) {
	r.filled[row][v] = y
	r.nFilled[v]++
	r.sumRMSE[v] += rmse
	r.sumNeigh[v] += float64(len(combo) - 1)

	values := make(map[string]float64, len(combo)-1)
	for _, j := range combo[1:] {
		k := order[j]
		r.usage[v][k]++
		values[r.ds.Stations[r.stations[k]].Name] = cols[j][row]
	}
	r.details = append(r.details, DetailRow{
		Variable:  r.ds.Variables[v],
		Date:      r.ds.Dates[row],
		Neighbors: len(combo) - 1,
		RMSE:      rmse,
		Estimate:  y,
		Filled:    true,
		Values:    values,
	})
}

func (r *run) finish() *Result {
	report := r.buildReport()
	res := &Result{
		Status:    StatusCompleted,
		Station:   r.station,
		Variables: r.ds.Variables,
		Dates:     r.ds.Dates,
		Filled:    r.filled,
		Predicted: r.predicted,
		Report:    report,
		Cache:     r.cache,
	}

	if r.predicted != nil {
		for v, name := range r.ds.Variables {
			if r.skipped[v] {
				continue
			}
			pred := make([]float64, len(r.predicted))
			obs := make([]float64, len(r.filled))
			for t := range pred {
				pred[t] = r.predicted[t][v]
				obs[t] = r.filled[t][v]
			}
			res.Errors = append(res.Errors, errorStats(name, pred, obs))
		}
	}

	if r.p.AddETP && r.engine.deriver != nil {
		values, err := r.engine.deriver.Derive(r.station, r.ds.Dates, r.ds.Variables, r.filled)
		if err != nil {
			r.notify(EventWarning, fmt.Sprintf("%s was not computed: %v", r.engine.deriver.Name(), err))
		} else {
			res.Derived = &DerivedSeries{Name: r.engine.deriver.Name(), Values: values}
		}
	}

	r.notify(EventInfo, fmt.Sprintf("Data completion for station %s completed", r.station.Name))
	if r.unfillable {
		r.notify(EventWarning, "Some missing data were not completed because all neighboring stations were empty for that period")
	}
	r.engine.logger.Infow("gap-fill run completed", "station", r.station.Name,
		"filled", report.Total.Filled, "unfilled", report.Total.Unfilled,
		"models", r.cache.Models, "cache_hits", r.cache.Hits)
	return res
}

func (r *run) buildReport() *Report {
	rows := r.end - r.start + 1
	report := &Report{
		Header: Header{
			Station:           r.station,
			SoftwareVersion:   r.p.SoftwareVersion,
			CreatedAt:         r.engine.now(),
			Mode:              r.p.Mode.String(),
			MaxNeighbors:      r.p.MaxNeighbors,
			DistanceCutoff:    r.p.DistanceCutoff,
			AltitudeCutoff:    r.p.AltitudeCutoff,
			Start:             r.ds.Dates[r.start],
			End:               r.ds.Dates[r.end],
			FullErrorAnalysis: r.p.FullErrorAnalysis,
		},
		Details:    r.details,
		Unfillable: r.unfillable,
	}

	totals := make([]int, len(r.stations))
	for v := range r.usage {
		for k, n := range r.usage[v] {
			if k != r.self {
				totals[k] += n
			}
		}
	}
	ranked := rankNeighbors(totals)
	for _, k := range ranked {
		report.Neighbors = append(report.Neighbors, r.ds.Stations[r.stations[k]].Name)
		report.Total.Usage = append(report.Total.Usage, StationUse{Station: r.ds.Stations[r.stations[k]].Name, Count: totals[k]})
	}

	report.Total.Rows = rows * len(r.ds.Variables)
	for v, name := range r.ds.Variables {
		s := VariableSummary{
			Variable:     name,
			Skipped:      r.skipped[v],
			Rows:         rows,
			Missing:      r.missing[v],
			Filled:       r.nFilled[v],
			Unfilled:     r.missing[v] - r.nFilled[v],
			AvgNeighbors: math.NaN(),
			AvgRMSE:      math.NaN(),
		}
		if r.nFilled[v] > 0 {
			s.AvgNeighbors = r.sumNeigh[v] / float64(r.nFilled[v])
			s.AvgRMSE = r.sumRMSE[v] / float64(r.nFilled[v])
		}
		for _, k := range ranked {
			s.Usage = append(s.Usage, StationUse{Station: r.ds.Stations[r.stations[k]].Name, Count: r.usage[v][k]})
		}
		report.Summaries = append(report.Summaries, s)
		report.Total.Missing += s.Missing
		report.Total.Filled += s.Filled
		report.Total.Unfilled += s.Unfilled
	}
	return report
}
