package bootstrap

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/permission"
	"github.com/wardenhq/warden/pkg/roles"
)

const operationsYAML = `
operations:
  - name: organization-create
    roles: [Maintainer]
  - name: organization-delete
    clear: true
    roles: [SuperUser]
`

func writeOperationsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newBootstrapper(t *testing.T) (*Bootstrapper, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	b := New(roles.NewStore(db), permission.NewStore(db), nil, logger)
	return b, mock, db
}

func expectSeed(mock sqlmock.Sqlmock) {
	for range roles.All() {
		mock.ExpectExec(`INSERT INTO roles`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
}

func expectOperationRow(mock sqlmock.Sqlmock, name, id string) {
	now := time.Now()
	mock.ExpectQuery(`SELECT id, name, created_at, updated_at FROM operations WHERE name = \$1`).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow(id, name, now, now))
}

func permissionRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"role_name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	return rows
}

func TestBootstrapper_Run(t *testing.T) {
	b, mock, db := newBootstrapper(t)
	defer db.Close()

	path := writeOperationsFile(t, operationsYAML)

	expectSeed(mock)

	// organization-create: Maintainer expands upward.
	expectOperationRow(mock, "organization-create", "op-1")
	mock.ExpectQuery(`SELECT role_name FROM permissions`).WithArgs("op-1").
		WillReturnRows(permissionRows())
	for _, role := range []string{"Administrator", "Deployer", "Maintainer", "SuperUser"} {
		mock.ExpectExec(`INSERT INTO permissions`).
			WithArgs("op-1", role, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	// organization-delete: cleared then SuperUser only.
	expectOperationRow(mock, "organization-delete", "op-2")
	mock.ExpectQuery(`SELECT role_name FROM permissions`).WithArgs("op-2").
		WillReturnRows(permissionRows())
	mock.ExpectExec(`INSERT INTO permissions`).
		WithArgs("op-2", "SuperUser", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, b.Run(context.Background(), path))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapper_SecondRunPerformsNoPermissionWrites(t *testing.T) {
	b, mock, db := newBootstrapper(t)
	defer db.Close()

	path := writeOperationsFile(t, `
operations:
  - name: organization-create
    roles: [SuperUser]
`)

	expectSeed(mock)
	expectOperationRow(mock, "organization-create", "op-1")
	mock.ExpectQuery(`SELECT role_name FROM permissions`).WithArgs("op-1").
		WillReturnRows(permissionRows("SuperUser"))

	// No INSERT or DELETE expectations: the persisted set already matches.
	require.NoError(t, b.Run(context.Background(), path))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapper_MissingFileIsSkipped(t *testing.T) {
	b, mock, db := newBootstrapper(t)
	defer db.Close()

	expectSeed(mock)

	require.NoError(t, b.Run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapper_UnknownRoleInFile(t *testing.T) {
	b, mock, db := newBootstrapper(t)
	defer db.Close()

	path := writeOperationsFile(t, `
operations:
  - name: organization-create
    roles: [Wizard]
`)

	expectSeed(mock)

	err := b.Run(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}
