package resource

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/roles"
)

const selectResource = `SELECT id, persona_id, parent_id, created_at, updated_at\s+FROM resources\s+WHERE id = \$1`

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func resourceRow(id, personaID, parentID string) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "persona_id", "parent_id", "created_at", "updated_at"})
	var p, par interface{}
	if personaID != "" {
		p = personaID
	}
	if parentID != "" {
		par = parentID
	}
	return rows.AddRow(id, p, par, now, now)
}

func TestStore_Create(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("rejects resource with no owner and no parent", func(t *testing.T) {
		err := store.Create(context.Background(), &Resource{})
		require.Error(t, err)
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("assigns an ID when none given", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO resources`).
			WithArgs(sqlmock.AnyArg(), "u-1", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		res := &Resource{PersonaID: "u-1"}
		require.NoError(t, store.Create(context.Background(), res))
		assert.NotEmpty(t, res.ID)
		assert.False(t, res.CreatedAt.IsZero())

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetNotFound(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(selectResource).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveOwner(t *testing.T) {
	t.Run("direct owner", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("r-1").WillReturnRows(resourceRow("r-1", "u-1", ""))

		owner, err := store.ResolveOwner(context.Background(), "r-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", owner)
	})

	t.Run("walks parent chain", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("r-3").WillReturnRows(resourceRow("r-3", "", "r-2"))
		mock.ExpectQuery(selectResource).WithArgs("r-2").WillReturnRows(resourceRow("r-2", "", "r-1"))
		mock.ExpectQuery(selectResource).WithArgs("r-1").WillReturnRows(resourceRow("r-1", "org-1", ""))

		owner, err := store.ResolveOwner(context.Background(), "r-3")
		require.NoError(t, err)
		assert.Equal(t, "org-1", owner)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ancestor with persona wins even when it also has a parent", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("r-2").WillReturnRows(resourceRow("r-2", "u-9", "r-1"))

		owner, err := store.ResolveOwner(context.Background(), "r-2")
		require.NoError(t, err)
		assert.Equal(t, "u-9", owner)
	})

	t.Run("looping chain is an internal error", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("r-a").WillReturnRows(resourceRow("r-a", "", "r-b"))
		mock.ExpectQuery(selectResource).WithArgs("r-b").WillReturnRows(resourceRow("r-b", "", "r-a"))

		_, err := store.ResolveOwner(context.Background(), "r-a")
		require.Error(t, err)
		assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	})

	t.Run("missing intermediate is an internal error", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("r-3").WillReturnRows(resourceRow("r-3", "", "gone"))
		mock.ExpectQuery(selectResource).WithArgs("gone").WillReturnError(sql.ErrNoRows)

		_, err := store.ResolveOwner(context.Background(), "r-3")
		require.Error(t, err)
		assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	})

	t.Run("missing start resource stays not found", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(selectResource).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := store.ResolveOwner(context.Background(), "ghost")
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err))
	})
}

func TestGrantStore_RolesFor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	grants := NewGrantStore(db)

	mock.ExpectQuery(`SELECT role_name\s+FROM persona_resource_roles`).
		WithArgs("u-1", "r-1").
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).
			AddRow("Maintainer").
			AddRow("Auditor"))

	set, err := grants.RolesFor(context.Background(), "u-1", "r-1")
	require.NoError(t, err)
	assert.True(t, set.Contains(roles.Maintainer))
	assert.True(t, set.Contains(roles.Auditor))
	assert.Len(t, set, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantStore_GrantRejectsUnknownRole(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	grants := NewGrantStore(db)

	_, err = grants.Grant(context.Background(), "u-1", "r-1", roles.Role("Wizard"))
	require.Error(t, err)
}

func TestGrantStore_GrantIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	grants := NewGrantStore(db)

	mock.ExpectExec(`INSERT INTO persona_resource_roles`).
		WithArgs(sqlmock.AnyArg(), "u-1", "r-1", "Monitor", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	g, err := grants.Grant(context.Background(), "u-1", "r-1", roles.Monitor)
	require.NoError(t, err)
	assert.Equal(t, roles.Monitor, g.Role)

	require.NoError(t, mock.ExpectationsWereMet())
}
