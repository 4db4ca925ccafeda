package timescaledb

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/weather"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var filledColumns = []string{"bucket", "stationname", "variable", "value", "estimated"}

// Writer stores filled series in weather_gapfilled with COPY.
type Writer struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewWriter opens a pgx pool and checks that the database answers.
func NewWriter(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Writer, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Writer{pool: pool, logger: logger}, nil
}

// Write replaces the station's rows inside the fill window with the result's
// filled series, in a single transaction. It returns the number of rows copied.
func (w *Writer) Write(ctx context.Context, res *gapfill.Result) (int64, error) {
	if res.Status != gapfill.StatusCompleted || res.Report == nil {
		return 0, fmt.Errorf("result for %q is not a completed run", res.Station.Name)
	}
	rows := FilledRows(res)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	h := res.Report.Header
	if _, err := tx.Exec(ctx, deleteGapfilledWindowSQL, res.Station.Name, h.Start, h.End); err != nil {
		return 0, fmt.Errorf("failed to clear previous rows: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"weather_gapfilled"}, filledColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy filled rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.logger.Infow("filled series stored", "station", res.Station.Name, "rows", n)
	return n, nil
}

// Close releases the pool.
func (w *Writer) Close() {
	w.pool.Close()
}

// FilledRows flattens the window of a completed result into COPY rows. Missing
// values are written as NULL; estimated marks the values produced by the run.
func FilledRows(res *gapfill.Result) [][]any {
	type cell struct {
		date     time.Time
		variable string
	}
	estimated := make(map[cell]bool)
	for _, d := range res.Report.Details {
		if d.Filled {
			estimated[cell{d.Date, d.Variable}] = true
		}
	}

	start, end := res.Report.Header.Start, res.Report.Header.End
	var rows [][]any
	for t, date := range res.Dates {
		if date.Before(start) || date.After(end) {
			continue
		}
		for v, name := range res.Variables {
			var value any
			if x := res.Filled[t][v]; !weather.IsMissing(x) {
				value = x
			}
			rows = append(rows, []any{date, res.Station.Name, name, value, estimated[cell{date, name}]})
		}
	}
	return rows
}
