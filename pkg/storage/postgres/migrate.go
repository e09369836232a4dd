package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration. Versions are unique per
// component; each component tracks its own applied set.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// RunMigrations executes all pending migrations for a component, recording
// applied versions in warden_migrations keyed by component name.
func RunMigrations(ctx context.Context, db *sql.DB, component string, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS warden_migrations (
			component VARCHAR(64) NOT NULL,
			version INT NOT NULL,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (component, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT version FROM warden_migrations WHERE component = $1 ORDER BY version", component)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute %s migration %d: %w", component, migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO warden_migrations (component, version, description) VALUES ($1, $2, $3)",
			component, migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record %s migration %d: %w", component, migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s migration %d: %w", component, migration.Version, err)
		}
	}

	return nil
}
