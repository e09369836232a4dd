package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The migration runner must work on both shipped drivers; the DDL it emits
// is restricted to syntax sqlite3 and postgres share.
func TestRunMigrations_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: 1, Description: "create things", SQL: `CREATE TABLE things (id TEXT PRIMARY KEY)`},
		{Version: 2, Description: "add name", SQL: `ALTER TABLE things ADD COLUMN name TEXT`},
	}

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, "things", migrations))

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM warden_migrations WHERE component = 'things'`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES ('t-1', 'one')`)
	require.NoError(t, err)

	// A second run applies nothing and succeeds.
	require.NoError(t, RunMigrations(ctx, db, "things", migrations))
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM warden_migrations WHERE component = 'things'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRunMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	bad := []Migration{
		{Version: 1, Description: "broken", SQL: `CREATE BROKEN SYNTAX`},
	}

	ctx := context.Background()
	require.Error(t, RunMigrations(ctx, db, "broken", bad))

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM warden_migrations WHERE component = 'broken'`).Scan(&count))
	assert.Equal(t, 0, count)
}
