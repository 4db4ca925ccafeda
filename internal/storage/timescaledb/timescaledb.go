// Package timescaledb reads daily station aggregates from TimescaleDB into a
// weather.Dataset and writes gap-filled series back.
package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/wxgapfill/internal/database"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoStations is returned when gapfill_stations holds no enabled station.
var ErrNoStations = errors.New("no enabled stations in gapfill_stations")

// Provider loads datasets from the weather_1d continuous aggregate.
type Provider struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New connects to TimescaleDB and creates the gap-fill tables when missing.
func New(ctx context.Context, connectionString string, maxRetry time.Duration, logger *zap.SugaredLogger) (*Provider, error) {
	db, err := database.ConnectWithRetry(ctx, connectionString, maxRetry, logger)
	if err != nil {
		return nil, err
	}
	p := NewFromDB(db, logger)
	if err := p.createTables(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromDB wraps an existing gorm connection.
func NewFromDB(db *gorm.DB, logger *zap.SugaredLogger) *Provider {
	return &Provider{db: db, logger: logger}
}

func (p *Provider) createTables(ctx context.Context) error {
	p.logger.Info("creating gap-fill tables...")
	for _, stmt := range []string{createStationsTableSQL, createGapfilledTableSQL, createGapfilledIndexSQL} {
		if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create gap-fill tables: %w", err)
		}
	}
	if err := p.db.WithContext(ctx).Exec(createGapfilledHypertableSQL).Error; err != nil {
		// Plain PostgreSQL without the TimescaleDB extension still works.
		p.logger.Warnf("could not convert weather_gapfilled to a hypertable: %v", err)
	}
	return nil
}

// Stations returns the enabled stations ordered by name.
func (p *Provider) Stations(ctx context.Context) ([]weather.Station, error) {
	var rows []database.GapfillStation
	if err := p.db.WithContext(ctx).Where("enabled = ?", true).Order("stationname").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	return toStations(rows), nil
}

// Load builds a dataset for every enabled station over [from, to]. A zero bound
// is replaced by the first or last day with data.
func (p *Provider) Load(ctx context.Context, from, to time.Time) (*weather.Dataset, error) {
	var stations []database.GapfillStation
	if err := p.db.WithContext(ctx).Where("enabled = ?", true).Order("stationname").Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	names := make([]string, len(stations))
	for i, st := range stations {
		names[i] = st.StationName
	}

	if from.IsZero() || to.IsZero() {
		var bounds struct {
			First *time.Time
			Last  *time.Time
		}
		if err := p.db.WithContext(ctx).Raw(bucketRangeSQL, names).Scan(&bounds).Error; err != nil {
			return nil, fmt.Errorf("failed to query record bounds: %w", err)
		}
		if bounds.First == nil || bounds.Last == nil {
			return nil, fmt.Errorf("no daily aggregates for the enabled stations")
		}
		if from.IsZero() {
			from = *bounds.First
		}
		if to.IsZero() {
			to = *bounds.Last
		}
	}

	var rows []database.DailyAggregate
	err := p.db.WithContext(ctx).
		Where("stationname IN ? AND bucket >= ? AND bucket < ?", names, from, to.AddDate(0, 0, 1)).
		Order("bucket").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query daily aggregates: %w", err)
	}

	ds := Assemble(stations, rows, from, to)
	p.logger.Infow("dataset loaded", "stations", len(ds.Stations), "days", ds.Rows(), "rows", len(rows))
	return ds, nil
}

// Close releases the underlying connection pool.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the database and runs a trivial query.
func (p *Provider) Health(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var result int
	if err := p.db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Assemble lays the aggregate rows out on a contiguous daily axis. Rows for
// unknown stations or outside [from, to] are ignored.
func Assemble(stations []database.GapfillStation, rows []database.DailyAggregate, from, to time.Time) *weather.Dataset {
	ds := weather.NewDataset(weather.DailyAxis(from, to), toStations(stations), append([]string(nil), weather.DefaultVariables...))
	index := make(map[string]int, len(stations))
	for i, st := range stations {
		index[st.StationName] = i
	}

	for _, r := range rows {
		s, ok := index[r.StationName]
		if !ok {
			continue
		}
		t, ok := ds.DateIndex(r.Bucket.UTC())
		if !ok {
			continue
		}
		ds.Set(t, s, 0, FahrenheitToCelsius(r.MaxOutTemp))
		ds.Set(t, s, 1, FahrenheitToCelsius(r.MinOutTemp))
		ds.Set(t, s, 2, FahrenheitToCelsius(r.OutTemp))
		ds.Set(t, s, 3, InchesToMillimeters(r.PeriodRain))
	}
	return ds
}

func toStations(rows []database.GapfillStation) []weather.Station {
	stations := make([]weather.Station, len(rows))
	for i, r := range rows {
		stations[i] = weather.Station{
			Name:      r.StationName,
			Province:  r.Province,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Altitude:  r.Altitude,
			ClimateID: r.ClimateID,
		}
	}
	return stations
}

// FahrenheitToCelsius converts and rounds to 0.1; nil becomes missing.
func FahrenheitToCelsius(f *float64) float64 {
	if f == nil {
		return weather.Missing()
	}
	return math.Round((*f-32)*5/9*10) / 10
}

// InchesToMillimeters converts and rounds to 0.1; nil becomes missing.
func InchesToMillimeters(in *float64) float64 {
	if in == nil {
		return weather.Missing()
	}
	return math.Round(*in*25.4*10) / 10
}
