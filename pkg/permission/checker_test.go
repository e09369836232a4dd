package permission

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
)

const (
	selectOperation   = `SELECT id, name, created_at, updated_at FROM operations WHERE name = \$1`
	selectUser        = `SELECT id, name, email, created_at, updated_at\s+FROM users\s+WHERE id = \$1`
	selectResourceRow = `SELECT id, persona_id, parent_id, created_at, updated_at\s+FROM resources\s+WHERE id = \$1`
	selectPermissions = `SELECT role_name FROM permissions WHERE operation_id = \$1`
)

func newMockChecker(t *testing.T) (*Checker, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	resolver := NewResolver(resource.NewGrantStore(db), orgs.NewMembershipStore(db), metrics)
	checker := NewChecker(NewStore(db), nil, resolver, resource.NewStore(db), persona.NewStore(db), logger, metrics)
	return checker, mock, db
}

func expectOperation(mock sqlmock.Sqlmock, name, id string) {
	now := time.Now()
	mock.ExpectQuery(selectOperation).WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow(id, name, now, now))
}

func expectUser(mock sqlmock.Sqlmock, id string) {
	now := time.Now()
	mock.ExpectQuery(selectUser).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "updated_at"}).
			AddRow(id, "Test User", nil, now, now))
}

func expectResource(mock sqlmock.Sqlmock, id, personaID string) {
	now := time.Now()
	mock.ExpectQuery(selectResourceRow).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "persona_id", "parent_id", "created_at", "updated_at"}).
			AddRow(id, personaID, nil, now, now))
}

func TestChecker_OwnerIsAlwaysAllowed(t *testing.T) {
	checker, mock, db := newMockChecker(t)
	defer db.Close()

	// No permitted roles are ever fetched: ownership short-circuits even
	// for an operation with zero configured roles.
	expectOperation(mock, "resource-delete", "op-1")
	expectUser(mock, "u-1")
	expectResource(mock, "r-1", "u-1")
	expectResource(mock, "r-1", "u-1")

	allowed, err := checker.IsAllowedTo(context.Background(), "resource-delete", "r-1", "u-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_AllowedWhenPermittedIntersectsGranted(t *testing.T) {
	checker, mock, db := newMockChecker(t)
	defer db.Close()

	expectOperation(mock, "resource-read", "op-1")
	expectUser(mock, "u-2")
	expectResource(mock, "r-1", "u-1")
	expectResource(mock, "r-1", "u-1")
	mock.ExpectQuery(selectPermissions).WithArgs("op-1").
		WillReturnRows(grantRows("Monitor", "Operator"))
	mock.ExpectQuery(selectGrants).WithArgs("u-2", "r-1").WillReturnRows(grantRows("Operator"))

	allowed, err := checker.IsAllowedTo(context.Background(), "resource-read", "r-1", "u-2")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_DeniedWithoutIntersection(t *testing.T) {
	checker, mock, db := newMockChecker(t)
	defer db.Close()

	expectOperation(mock, "resource-delete", "op-1")
	expectUser(mock, "u-2")
	expectResource(mock, "r-1", "u-1")
	expectResource(mock, "r-1", "u-1")
	mock.ExpectQuery(selectPermissions).WithArgs("op-1").
		WillReturnRows(grantRows("SuperUser"))
	mock.ExpectQuery(selectGrants).WithArgs("u-2", "r-1").WillReturnRows(grantRows("Monitor"))

	allowed, err := checker.IsAllowedTo(context.Background(), "resource-delete", "r-1", "u-2")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_UnresolvableInputsAreInvalidArgument(t *testing.T) {
	t.Run("unknown operation", func(t *testing.T) {
		checker, mock, db := newMockChecker(t)
		defer db.Close()

		mock.ExpectQuery(selectOperation).WithArgs("no-such-op").WillReturnError(sql.ErrNoRows)

		_, err := checker.IsAllowedTo(context.Background(), "no-such-op", "r-1", "u-1")
		require.Error(t, err)
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("unknown resource", func(t *testing.T) {
		checker, mock, db := newMockChecker(t)
		defer db.Close()

		expectOperation(mock, "resource-read", "op-1")
		expectUser(mock, "u-1")
		mock.ExpectQuery(selectResourceRow).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		_, err := checker.IsAllowedTo(context.Background(), "resource-read", "ghost", "u-1")
		require.Error(t, err)
		assert.True(t, errs.IsInvalidArgument(err))
	})
}

func TestChecker_CacheHitSkipsPermissionRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, nil)
	cache, err := NewLRUCache(8, metrics)
	require.NoError(t, err)

	resolver := NewResolver(resource.NewGrantStore(db), orgs.NewMembershipStore(db), metrics)
	checker := NewChecker(NewStore(db), cache, resolver, resource.NewStore(db), persona.NewStore(db), logger, metrics)

	require.NoError(t, cache.Set(context.Background(), "resource-read", grantSet(t, "Monitor")))

	// No SELECT against permissions is expected; the cached set is used.
	expectOperation(mock, "resource-read", "op-1")
	expectUser(mock, "u-2")
	expectResource(mock, "r-1", "u-1")
	expectResource(mock, "r-1", "u-1")
	mock.ExpectQuery(selectGrants).WithArgs("u-2", "r-1").WillReturnRows(grantRows("Monitor"))

	allowed, err := checker.IsAllowedTo(context.Background(), "resource-read", "r-1", "u-2")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}
