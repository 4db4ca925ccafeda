// Package migrate applies versioned SQL migrations to SQLite databases.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DB represents either a database connection or transaction
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// MigrationProvider defines how migrations are loaded and managed
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	GetCurrentVersion(db *sql.DB) (int, error)
	SetVersion(db DB, version int) error
	CreateMigrationTable(db *sql.DB) error
}

// Migrator applies the migrations of one provider to one database.
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
	logger   *zap.SugaredLogger
}

// latest selects the newest known migration as the target version.
const latest = -1

// NewMigrator creates a new migrator instance. A nil logger disables logging.
func NewMigrator(db *sql.DB, provider MigrationProvider, logger *zap.SugaredLogger) *Migrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Migrator{
		db:       db,
		provider: provider,
		logger:   logger,
	}
}

// Apply brings db up to the newest migration found under dir in fsys, tracking
// applied versions in table. An up-to-date database is left untouched.
func Apply(db *sql.DB, fsys fs.FS, dir, table string, logger *zap.SugaredLogger) error {
	provider := NewFSProvider(fsys, dir, table)
	m := NewMigrator(db, provider, logger)
	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	m.logger.Infow("applying schema migrations", "table", provider.migrationTable,
		"from", pending[0].Version, "to", pending[len(pending)-1].Version)
	return m.MigrateUp()
}

// MigrateUp applies every pending migration.
func (m *Migrator) MigrateUp() error {
	return m.MigrateTo(latest)
}

// MigrateDown reverts migrations until target is the current version. target
// must be below the current version.
func (m *Migrator) MigrateDown(target int) error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if target >= current {
		return fmt.Errorf("target version %d must be less than current version %d", target, current)
	}
	return m.MigrateTo(target)
}

// MigrateTo applies or reverts migrations until target is the current version.
func (m *Migrator) MigrateTo(target int) error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	migrations, err := m.sorted()
	if err != nil {
		return err
	}
	if target == latest {
		target = 0
		if len(migrations) > 0 {
			target = migrations[len(migrations)-1].Version
		}
	}

	for _, st := range plan(migrations, current, target) {
		if err := m.execute(st); err != nil {
			return fmt.Errorf("failed to %s migration %d: %w", st.verb(), st.migration.Version, err)
		}
	}
	return nil
}

// CurrentVersion returns the highest applied version, 0 for a fresh database.
func (m *Migrator) CurrentVersion() (int, error) {
	if err := m.provider.CreateMigrationTable(m.db); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}
	return m.provider.GetCurrentVersion(m.db)
}

// Pending returns the migrations newer than the current version, oldest first.
func (m *Migrator) Pending() ([]Migration, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, err
	}
	migrations, err := m.sorted()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) sorted() ([]Migration, error) {
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// step is one migration to run in one direction, and the version it leaves behind.
type step struct {
	migration Migration
	up        bool
	version   int
}

func (s step) verb() string {
	if s.up {
		return "apply"
	}
	return "revert"
}

// plan orders the steps that move a database from current to target.
// migrations must be sorted by version.
func plan(migrations []Migration, current, target int) []step {
	var steps []step
	if target >= current {
		for _, mig := range migrations {
			if mig.Version > current && mig.Version <= target {
				steps = append(steps, step{migration: mig, up: true, version: mig.Version})
			}
		}
		return steps
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version <= target || mig.Version > current {
			continue
		}
		prev := 0
		if i > 0 {
			prev = migrations[i-1].Version
		}
		steps = append(steps, step{migration: mig, up: false, version: prev})
	}
	return steps
}

// execute runs one step and records the resulting version in one transaction.
func (m *Migrator) execute(st step) error {
	stmt, direction := st.migration.Up, "up"
	if !st.up {
		stmt, direction = st.migration.Down, "down"
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", st.migration.Version, direction)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.provider.SetVersion(tx, st.version); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.Infow("migration "+direction, "version", st.migration.Version, "name", st.migration.Name)
	return nil
}
