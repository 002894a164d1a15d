package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

// OpenDB opens (creating when needed) the run history database and migrates
// it to the current schema.
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	} else {
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if err == sql.ErrNoRows {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than supported (max: %d); delete %s to start fresh",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}
	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}
	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0->v1: %w", err)
		}
	}
	return nil
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []struct {
		name string
		sql  string
	}{
		{"schema_version table", `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`},
		{"schema version row", `INSERT INTO schema_version (version) VALUES (1)`},
		{"runs table", `
			CREATE TABLE IF NOT EXISTS runs (
				run_id TEXT PRIMARY KEY,
				created_at TEXT NOT NULL,
				source TEXT,
				technology TEXT NOT NULL,
				profile_name TEXT,
				trace_start REAL NOT NULL,
				trace_end REAL NOT NULL,
				total_energy REAL NOT NULL,
				burst_count INTEGER NOT NULL,
				long_bursts INTEGER NOT NULL,
				periodic_groups INTEGER NOT NULL,
				anomalies INTEGER NOT NULL
			)
		`},
		{"bursts table", `
			CREATE TABLE IF NOT EXISTS bursts (
				run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
				burst_index INTEGER NOT NULL,
				begin_ts REAL NOT NULL,
				end_ts REAL NOT NULL,
				packet_count INTEGER NOT NULL,
				category TEXT NOT NULL,
				periodic INTEGER NOT NULL,
				long INTEGER NOT NULL,
				payload INTEGER NOT NULL,
				uplink_session INTEGER NOT NULL,
				energy REAL NOT NULL,
				active_time REAL NOT NULL,
				PRIMARY KEY (run_id, burst_index)
			)
		`},
		{"category_summaries table", `
			CREATE TABLE IF NOT EXISTS category_summaries (
				run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
				category TEXT NOT NULL,
				burst_count INTEGER NOT NULL,
				payload INTEGER NOT NULL,
				energy REAL NOT NULL,
				energy_pct REAL NOT NULL,
				active_time REAL NOT NULL,
				j_per_kb REAL NOT NULL,
				PRIMARY KEY (run_id, category)
			)
		`},
		{"runs index", `CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`},
		{"bursts category index", `CREATE INDEX IF NOT EXISTS idx_bursts_category ON bursts(category)`},
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt.sql); err != nil {
			return fmt.Errorf("creating %s: %w", stmt.name, err)
		}
	}
	return tx.Commit()
}
