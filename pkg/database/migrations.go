package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents one schema migration
// ARCHITECTURAL DISCOVERY: migrations are compiled into the binary rather
// than read from disk so a deployment is a single artifact
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations is the ordered list applied by the manager. Append only.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "events table with per-session sequence key",
		SQL: `
			CREATE TABLE IF NOT EXISTS events (
				session_id TEXT NOT NULL,
				seq        INTEGER NOT NULL,
				id         TEXT NOT NULL,
				kind       TEXT NOT NULL,
				from_client TEXT,
				payload    TEXT NOT NULL,
				timestamp  DATETIME NOT NULL,
				PRIMARY KEY (session_id, seq)
			);
			CREATE INDEX IF NOT EXISTS idx_events_session_timestamp
				ON events (session_id, timestamp);
		`,
	},
}

// MigrationManager applies pending migrations and tracks applied versions
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in order
// FUNCTIONAL DISCOVERY: each migration runs in its own transaction so a
// failure leaves the schema at a known version instead of half-applied
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			migration.Version, migration.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
		}

		log.Printf("Applied migration %s: %s", migration.Version, migration.Description)
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
