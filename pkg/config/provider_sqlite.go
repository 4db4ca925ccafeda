package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/chrissnell/wxgapfill/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultConfigID = `(SELECT id FROM configs WHERE name = 'default')`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the configuration database and applies pending schema migrations
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := migrate.Apply(db, migrations, "migrations", "config_schema_migrations", nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	fill, err := s.GetFillConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load fill config: %w", err)
	}
	config.Fill = *fill

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	config.Server, err = s.GetServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	return config, nil
}

// GetFillConfig returns the gap-fill parameters. A missing row yields the zero value.
func (s *SQLiteProvider) GetFillConfig() (*FillData, error) {
	query := `
		SELECT max_stations, distance_cutoff_km, altitude_cutoff_m, regression,
		       start_date, end_date, full_error_analysis, add_etp, min_pairs
		FROM fill_configs
		WHERE config_id = ` + defaultConfigID

	var fill FillData
	var maxStations, minPairs sql.NullInt64
	var distance, altitude sql.NullFloat64
	var regression, start, end sql.NullString

	err := s.db.QueryRow(query).Scan(
		&maxStations, &distance, &altitude, &regression,
		&start, &end, &fill.FullErrorAnalysis, &fill.AddETP, &minPairs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &fill, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fill config: %w", err)
	}

	fill.MaxStations = int(maxStations.Int64)
	fill.MinPairs = int(minPairs.Int64)
	fill.DistanceCutoffKm = distance.Float64
	fill.AltitudeCutoffM = altitude.Float64
	fill.Regression = regression.String
	fill.Start = start.String
	fill.End = end.String

	return &fill, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, connection_string, connect_timeout, write_results, path
		FROM storage_configs
		WHERE config_id = ` + defaultConfigID + ` AND enabled = 1`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}

	for rows.Next() {
		var backendType string
		var connectionString, connectTimeout, path sql.NullString
		var writeResults bool

		if err := rows.Scan(&backendType, &connectionString, &connectTimeout, &writeResults, &path); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "timescaledb":
			storage.TimescaleDB = &TimescaleDBData{
				ConnectionString: connectionString.String,
				ConnectTimeout:   connectTimeout.String,
				WriteResults:     writeResults,
			}
		case "run_history":
			storage.RunHistory = &RunHistoryData{Path: path.String}
		case "export":
			storage.Export = &ExportData{Directory: path.String}
		}
	}

	return storage, rows.Err()
}

// GetServerConfig returns the HTTP API configuration, or nil when none is stored
func (s *SQLiteProvider) GetServerConfig() (*ServerData, error) {
	query := `SELECT cert, key, port, listen_addr FROM server_configs WHERE config_id = ` + defaultConfigID

	var cert, key, listenAddr sql.NullString
	var port sql.NullInt64
	err := s.db.QueryRow(query).Scan(&cert, &key, &port, &listenAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server config: %w", err)
	}

	return &ServerData{
		Cert:       cert.String,
		Key:        key.String,
		Port:       int(port.Int64),
		ListenAddr: listenAddr.String,
	}, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, "default")
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	if err := s.insertFillConfig(tx, configID, &configData.Fill); err != nil {
		return fmt.Errorf("failed to insert fill config: %w", err)
	}

	if err := s.insertStorageConfigs(tx, configID, &configData.Storage); err != nil {
		return fmt.Errorf("failed to insert storage configs: %w", err)
	}

	if configData.Server != nil {
		srv := configData.Server
		_, err := tx.Exec(`INSERT INTO server_configs (config_id, cert, key, port, listen_addr) VALUES (?, ?, ?, ?, ?)`,
			configID, srv.Cert, srv.Key, srv.Port, srv.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to insert server config: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, name string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO configs (name, created_at, updated_at) VALUES (?, datetime('now'), datetime('now'))
		ON CONFLICT(name) DO UPDATE SET updated_at = datetime('now')`, name)
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow(`SELECT id FROM configs WHERE name = ?`, name).Scan(&id)
	return id, err
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	queries := []string{
		"DELETE FROM fill_configs WHERE config_id = ?",
		"DELETE FROM storage_configs WHERE config_id = ?",
		"DELETE FROM server_configs WHERE config_id = ?",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query, configID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertFillConfig(tx *sql.Tx, configID int64, fill *FillData) error {
	query := `
		INSERT INTO fill_configs (
			config_id, max_stations, distance_cutoff_km, altitude_cutoff_m, regression,
			start_date, end_date, full_error_analysis, add_etp, min_pairs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.Exec(query,
		configID, fill.MaxStations, fill.DistanceCutoffKm, fill.AltitudeCutoffM, fill.Regression,
		fill.Start, fill.End, fill.FullErrorAnalysis, fill.AddETP, fill.MinPairs,
	)
	return err
}

func (s *SQLiteProvider) insertStorageConfigs(tx *sql.Tx, configID int64, storage *StorageData) error {
	query := `
		INSERT INTO storage_configs (config_id, backend_type, connection_string, connect_timeout, write_results, path)
		VALUES (?, ?, ?, ?, ?, ?)`

	if t := storage.TimescaleDB; t != nil {
		if _, err := tx.Exec(query, configID, "timescaledb", t.ConnectionString, t.ConnectTimeout, t.WriteResults, nil); err != nil {
			return err
		}
	}
	if r := storage.RunHistory; r != nil {
		if _, err := tx.Exec(query, configID, "run_history", nil, nil, false, r.Path); err != nil {
			return err
		}
	}
	if e := storage.Export; e != nil {
		if _, err := tx.Exec(query, configID, "export", nil, nil, false, e.Directory); err != nil {
			return err
		}
	}
	return nil
}
