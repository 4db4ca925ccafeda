package gapfill

import (
	"context"
	"fmt"

	"github.com/chrissnell/wxgapfill/internal/weather"
)

// TargetSelector supplies the correlation and distance arrays for one station.
type TargetSelector interface {
	Select(ds *weather.Dataset, index int) (*weather.Target, error)
}

// SelectorFunc adapts a function to TargetSelector.
type SelectorFunc func(ds *weather.Dataset, index int) (*weather.Target, error)

func (f SelectorFunc) Select(ds *weather.Dataset, index int) (*weather.Target, error) {
	return f(ds, index)
}

// CorrelationSelector selects targets with weather.SelectTarget.
type CorrelationSelector struct {
	MinPairs int
}

func (c CorrelationSelector) Select(ds *weather.Dataset, index int) (*weather.Target, error) {
	return weather.SelectTarget(ds, index, c.MinPairs)
}

// FillAll runs the engine for every station of the dataset in turn. Each run is
// independent and starts only after the previous one returned. It stops after the
// first stopped run; the stopped result is the last element of the slice.
func (e *Engine) FillAll(ctx context.Context, ds *weather.Dataset, selector TargetSelector, p Params) ([]*Result, error) {
	e.begin()
	defer e.end()

	results := make([]*Result, 0, len(ds.Stations))
	for s := range ds.Stations {
		target, err := selector.Select(ds, s)
		if err != nil {
			return results, fmt.Errorf("failed to select target %q: %w", ds.Stations[s].Name, err)
		}
		res, err := e.Run(ctx, ds, target, p)
		if err != nil {
			return results, fmt.Errorf("failed to fill station %q: %w", ds.Stations[s].Name, err)
		}
		results = append(results, res)
		if res.Status == StatusStopped {
			break
		}
	}
	return results, nil
}
