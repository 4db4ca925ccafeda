// Package app wires the configuration, the TimescaleDB dataset provider, the gap-fill
// engine and its output sinks into the CLI and HTTP entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/wxgapfill/internal/controllers/restserver"
	"github.com/chrissnell/wxgapfill/internal/export"
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/runstore"
	"github.com/chrissnell/wxgapfill/internal/storage/timescaledb"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/chrissnell/wxgapfill/pkg/config"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 2 * time.Minute

var ErrNoServer = errors.New("no server section in configuration")

// DatasetSource supplies the observation cube and station list.
type DatasetSource interface {
	Stations(ctx context.Context) ([]weather.Station, error)
	Load(ctx context.Context, from, to time.Time) (*weather.Dataset, error)
	Health(ctx context.Context) error
}

// ResultSink persists the filled series of a completed run.
type ResultSink interface {
	Write(ctx context.Context, res *gapfill.Result) (int64, error)
}

// App represents the main application
type App struct {
	cfg      *config.ConfigData
	version  string
	source   DatasetSource
	sink     ResultSink
	exporter *export.Exporter
	runs     *runstore.Store
	logger   *zap.SugaredLogger

	closers []func() error
}

// Option configures an App built with NewWithSource.
type Option func(*App)

func WithSink(s ResultSink) Option {
	return func(a *App) { a.sink = s }
}

func WithExporter(e *export.Exporter) Option {
	return func(a *App) { a.exporter = e }
}

func WithRunStore(s *runstore.Store) Option {
	return func(a *App) { a.runs = s }
}

// New connects every backend named in cfg.
func New(ctx context.Context, cfg *config.ConfigData, version string, logger *zap.SugaredLogger) (*App, error) {
	ts := cfg.Storage.TimescaleDB
	if ts == nil || ts.ConnectionString == "" {
		return nil, errors.New("storage.timescaledb.connection-string is required")
	}
	timeout, err := ts.Timeout(defaultConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid storage.timescaledb.connect-timeout: %w", err)
	}

	provider, err := timescaledb.New(ctx, ts.ConnectionString, timeout, logger.Named("timescaledb"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up dataset provider: %w", err)
	}
	a := NewWithSource(cfg, provider, version, logger)
	a.closers = append(a.closers, provider.Close)

	if ts.WriteResults {
		w, err := timescaledb.NewWriter(ctx, ts.ConnectionString, logger.Named("writer"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to set up result writer: %w", err)
		}
		a.sink = w
		a.closers = append(a.closers, func() error { w.Close(); return nil })
	}

	if e := cfg.Storage.Export; e != nil && e.Directory != "" {
		a.exporter, err = export.New(e.Directory)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to set up export directory: %w", err)
		}
	}

	if rh := cfg.Storage.RunHistory; rh != nil && rh.Path != "" {
		a.runs, err = runstore.Open(rh.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		a.closers = append(a.closers, a.runs.Close)
	}

	return a, nil
}

// NewWithSource builds an App around an existing dataset source.
func NewWithSource(cfg *config.ConfigData, source DatasetSource, version string, logger *zap.SugaredLogger, opts ...Option) *App {
	a := &App{
		cfg:     cfg,
		version: version,
		source:  source,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close releases every backend opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP API until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Server == nil {
		return ErrNoServer
	}

	var wg sync.WaitGroup
	ctrl := restserver.NewController(ctx, &wg, a, *a.cfg.Server, a.logger.Named("rest"))
	if err := ctrl.StartController(); err != nil {
		return err
	}
	a.logger.Infow("serving gap-fill API", "addr", ctrl.Server.Addr)

	<-ctx.Done()
	a.logger.Info("waiting for the REST server to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")
	return nil
}

// Stations lists the stations known to the dataset source.
func (a *App) Stations(ctx context.Context) ([]weather.Station, error) {
	return a.source.Stations(ctx)
}

// History lists persisted runs, newest first. Without a run store it is always empty.
func (a *App) History(ctx context.Context, station string, limit int) ([]runstore.Record, error) {
	if a.runs == nil {
		return []runstore.Record{}, nil
	}
	return a.runs.List(ctx, station, limit)
}

// Run returns one persisted run with its report. Without a run store no run exists.
func (a *App) Run(ctx context.Context, id string) (*runstore.Record, error) {
	if a.runs == nil {
		return nil, runstore.ErrNotFound
	}
	return a.runs.Get(ctx, id)
}

// Health reports whether the dataset source is reachable.
func (a *App) Health(ctx context.Context) error {
	return a.source.Health(ctx)
}
