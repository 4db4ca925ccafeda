// Package runstore keeps the history of gap-fill runs in SQLite.
package runstore

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/pkg/migrate"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

//go:embed migrations/*.sql
var migrations embed.FS

// Record is one persisted run. Report is only populated by Get.
type Record struct {
	ID                string          `json:"id"`
	Station           string          `json:"station"`
	Status            string          `json:"status"`
	Mode              string          `json:"mode"`
	FullErrorAnalysis bool            `json:"full_error_analysis"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	Missing           int             `json:"missing"`
	Filled            int             `json:"filled"`
	Unfilled          int             `json:"unfilled"`
	Fingerprint       string          `json:"fingerprint"`
	Error             string          `json:"error,omitempty"`
	Report            *gapfill.Report `json:"report,omitempty"`
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate.Apply(db, migrations, "migrations", "", nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate run history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a run.
func (s *Store) Save(ctx context.Context, r Record) error {
	var blob []byte
	if r.Report != nil {
		var err error
		if blob, err = encodeReport(r.Report); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, station, status, mode, full_error_analysis, started_at, finished_at,
			 missing, filled, unfilled, fingerprint, error, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Station, r.Status, r.Mode, r.FullErrorAnalysis,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Missing, r.Filled, r.Unfilled, r.Fingerprint, r.Error, blob)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

// Get returns a run with its report.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, station, status, mode, full_error_analysis, started_at, finished_at,
		       missing, filled, unfilled, fingerprint, error, report
		FROM runs WHERE id = ?`, id)

	var r Record
	var blob []byte
	if err := scanRecord(row, &r, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	if len(blob) > 0 {
		report, err := decodeReport(blob)
		if err != nil {
			return nil, err
		}
		r.Report = report
	}
	return &r, nil
}

// List returns the most recent runs first, optionally for a single station.
// A limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, station string, limit int) ([]Record, error) {
	query := `
		SELECT id, station, status, mode, full_error_analysis, started_at, finished_at,
		       missing, filled, unfilled, fingerprint, error, NULL
		FROM runs`
	var args []any
	if station != "" {
		query += " WHERE station = ?"
		args = append(args, station)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		if err := scanRecord(rows, &r, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner, r *Record, blob *[]byte) error {
	var started, finished string
	err := sc.Scan(&r.ID, &r.Station, &r.Status, &r.Mode, &r.FullErrorAnalysis, &started, &finished,
		&r.Missing, &r.Filled, &r.Unfilled, &r.Fingerprint, &r.Error, blob)
	if err != nil {
		return err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return fmt.Errorf("invalid finished_at %q: %w", finished, err)
	}
	return nil
}

func encodeReport(report *gapfill.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(report); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeReport(blob []byte) (*gapfill.Report, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.SetCustomStructTag("json")
	var report gapfill.Report
	if err := dec.Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// FromResult builds a record for a finished run.
func FromResult(id string, res *gapfill.Result, p gapfill.Params, fingerprint string, started, finished time.Time) Record {
	r := Record{
		ID:                id,
		Station:           res.Station.Name,
		Status:            string(res.Status),
		Mode:              p.Mode.String(),
		FullErrorAnalysis: p.FullErrorAnalysis,
		StartedAt:         started,
		FinishedAt:        finished,
		Fingerprint:       fingerprint,
		Report:            res.Report,
	}
	if res.Report != nil {
		r.Missing = res.Report.Total.Missing
		r.Filled = res.Report.Total.Filled
		r.Unfilled = res.Report.Total.Unfilled
	}
	return r
}
