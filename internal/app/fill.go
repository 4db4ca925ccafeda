package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wxgapfill/internal/controllers/restserver"
	"github.com/chrissnell/wxgapfill/internal/etp"
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/metrics"
	"github.com/chrissnell/wxgapfill/internal/regression"
	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/chrissnell/wxgapfill/pkg/config"
	"github.com/google/uuid"
)

var ErrUnknownStation = errors.New("unknown station")

// Params converts the fill section of the configuration into engine parameters.
// Zero values keep the defaults; a negative cutoff disables that criterion.
func Params(fill config.FillData, version string) (gapfill.Params, error) {
	p := gapfill.DefaultParams()
	p.SoftwareVersion = version
	p.FullErrorAnalysis = fill.FullErrorAnalysis
	p.AddETP = fill.AddETP

	if fill.MaxStations != 0 {
		p.MaxNeighbors = fill.MaxStations
	}
	if fill.DistanceCutoffKm != 0 {
		p.DistanceCutoff = fill.DistanceCutoffKm
	}
	if fill.AltitudeCutoffM != 0 {
		p.AltitudeCutoff = fill.AltitudeCutoffM
	}

	mode, err := regression.ParseMode(fill.Regression)
	if err != nil {
		return p, fmt.Errorf("%w: %v", gapfill.ErrConfiguration, err)
	}
	p.Mode = mode

	p.Start, p.End, err = fill.Window()
	if err != nil {
		return p, fmt.Errorf("%w: %v", gapfill.ErrConfiguration, err)
	}
	return p, nil
}

// Fill loads the dataset and runs the engine for one station or for all of them.
// Completed results go to the result sink and the export directory; every result,
// stopped or not, is recorded in the run history.
func (a *App) Fill(ctx context.Context, req restserver.RunRequest, notifier gapfill.Notifier) ([]*gapfill.Result, error) {
	p, err := Params(a.cfg.Fill, a.version)
	if err != nil {
		return nil, err
	}
	p.FullErrorAnalysis = p.FullErrorAnalysis || req.FullErrorAnalysis

	ds, err := a.source.Load(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	fingerprint := ds.Fingerprint()
	a.logger.Infow("dataset loaded", "stations", len(ds.Stations), "days", ds.Rows(), "fingerprint", fingerprint)

	engine, dispatcher := a.newEngine(notifier)
	selector := gapfill.CorrelationSelector{MinPairs: a.cfg.Fill.MinPairs}
	started := time.Now()

	var results []*gapfill.Result
	if req.All {
		results, err = engine.FillAll(ctx, ds, selector, p)
	} else {
		results, err = a.fillOne(ctx, engine, selector, req.Station, ds, p)
	}
	dispatcher.Close()

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, res := range results {
		if perr := a.persist(ctx, res, p, fingerprint, started); perr != nil {
			errs = append(errs, perr)
		}
	}
	return results, errors.Join(errs...)
}

func (a *App) fillOne(ctx context.Context, engine *gapfill.Engine, selector gapfill.TargetSelector, name string, ds *weather.Dataset, p gapfill.Params) ([]*gapfill.Result, error) {
	index, ok := ds.StationIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, name)
	}
	target, err := selector.Select(ds, index)
	if err != nil {
		return nil, fmt.Errorf("failed to select target %q: %w", name, err)
	}
	res, err := engine.Run(ctx, ds, target, p)
	if err != nil {
		return nil, err
	}
	return []*gapfill.Result{res}, nil
}

// newEngine builds an engine whose events are logged and forwarded to notifier on a
// dispatcher goroutine. The dispatcher must be closed once the runs return.
func (a *App) newEngine(notifier gapfill.Notifier) (*gapfill.Engine, *gapfill.Dispatcher) {
	handlers := gapfill.MultiNotifier{gapfill.LogNotifier{Logger: a.logger}}
	if notifier != nil {
		handlers = append(handlers, notifier)
	}
	dispatcher := gapfill.NewDispatcher(handlers, a.logger)
	engine := gapfill.NewEngine(a.logger.Named("engine"),
		gapfill.WithNotifier(dispatcher),
		gapfill.WithDeriver(etp.Thornthwaite{}),
	)
	return engine, dispatcher
}

func (a *App) persist(ctx context.Context, res *gapfill.Result, p gapfill.Params, fingerprint string, started time.Time) error {
	finished := time.Now()
	metrics.ObserveResult(res, p.Mode.String(), finished.Sub(started).Seconds())

	var errs []error
	if res.Status == gapfill.StatusCompleted {
		if a.sink != nil {
			n, err := a.sink.Write(ctx, res)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to write filled series of %q: %w", res.Station.Name, err))
			} else {
				a.logger.Infow("filled series written", "station", res.Station.Name, "rows", n)
			}
		}
		if a.exporter != nil {
			paths, err := a.exporter.Write(res)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to export %q: %w", res.Station.Name, err))
			} else {
				a.logger.Infow("results exported", "station", res.Station.Name, "series", paths.Series, "log", paths.Log)
			}
		}
	}

	if a.runs != nil {
		rec := runstore.FromResult(uuid.NewString(), res, p, fingerprint, started, finished)
		if len(errs) > 0 {
			rec.Error = errors.Join(errs...).Error()
		}
		if err := a.runs.Save(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to record run of %q: %w", res.Station.Name, err))
		}
	}
	return errors.Join(errs...)
}
