package roles

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func TestStore_GetByName(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{"name", "description", "created_at", "updated_at"}).
			AddRow("Auditor", Descriptions[Auditor], now, now)

		mock.ExpectQuery(`SELECT name, description, created_at, updated_at\s+FROM roles\s+WHERE name = \$1`).
			WithArgs("Auditor").
			WillReturnRows(rows)

		rec, err := store.GetByName(context.Background(), "Auditor")
		require.NoError(t, err)
		assert.Equal(t, Auditor, rec.Name)
		assert.Equal(t, Descriptions[Auditor], rec.Description)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown role name fails before touching the store", func(t *testing.T) {
		_, err := store.GetByName(context.Background(), "Wizard")
		require.Error(t, err)
		assert.Equal(t, errs.KindInternal, errs.KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role missing from table", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name, description, created_at, updated_at\s+FROM roles\s+WHERE name = \$1`).
			WithArgs("Monitor").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetByName(context.Background(), "Monitor")
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Seed(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	for _, role := range All() {
		mock.ExpectExec(`INSERT INTO roles`).
			WithArgs(string(role), Descriptions[role], sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, store.Seed(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"name", "description", "created_at", "updated_at"}).
		AddRow("Administrator", Descriptions[Administrator], now, now).
		AddRow("Auditor", Descriptions[Auditor], now, now)

	mock.ExpectQuery(`SELECT name, description, created_at, updated_at\s+FROM roles\s+ORDER BY name ASC`).
		WillReturnRows(rows)

	recs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, Administrator, recs[0].Name)

	require.NoError(t, mock.ExpectationsWereMet())
}
