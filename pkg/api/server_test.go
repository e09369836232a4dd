package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/permission"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
)

type stubResolver struct {
	user *persona.User
	err  error
}

func (s stubResolver) Resolve(ctx context.Context, rawToken string) (*persona.User, error) {
	return s.user, s.err
}

func newTestServer(t *testing.T, resolver PrincipalResolver) (*Server, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	grants := resource.NewGrantStore(db)
	members := orgs.NewMembershipStore(db)
	resolverEngine := permission.NewResolver(grants, members, metrics)
	permStore := permission.NewStore(db)
	checker := permission.NewChecker(permStore, nil, resolverEngine, resource.NewStore(db), persona.NewStore(db), logger, metrics)

	service := orgs.NewService(
		orgs.NewStore(db),
		members,
		orgs.NewInvitationStore(db),
		orgs.NewJoinRequestStore(db),
		resource.NewStore(db),
		grants,
		persona.NewStore(db),
		notify.Noop{},
		logger,
		metrics,
	)

	srv := NewServer(checker, permStore, nil, service, roles.NewStore(db), grants, resolver, logger, metrics)
	return srv, mock, db
}

func authedRequest(method, target, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer token")
	return req
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(errs.NotFound("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errs.InvalidArgument("x")))
	assert.Equal(t, http.StatusConflict, statusFor(errs.Conflict("x")))
	assert.Equal(t, http.StatusForbidden, statusFor(errs.Forbidden("x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.Cycle("x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.Internal("x")))
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _, db := newTestServer(t, stubResolver{})
	defer db.Close()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingBearerTokenIsForbidden(t *testing.T) {
	srv, _, db := newTestServer(t, stubResolver{})
	defer db.Close()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/roles", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListOwnGrants(t *testing.T) {
	user := &persona.User{ID: "u-1", Name: "Jane"}
	srv, mock, db := newTestServer(t, stubResolver{user: user})
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM persona_resource_roles\s+WHERE persona_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "persona_id", "resource_id", "role_name", "created_at", "updated_at"}).
			AddRow("g-1", "u-1", "org-1", "SuperUser", now, now).
			AddRow("g-2", "u-1", "req-9", "Monitor", now, now))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/grants", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Grants []resource.Grant `json:"grants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Grants, 2)
	assert.Equal(t, "org-1", body.Grants[0].ResourceID)
	assert.Equal(t, "req-9", body.Grants[1].ResourceID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_RepeatAcceptanceIs202(t *testing.T) {
	user := &persona.User{ID: "u-2", Name: "Jane"}
	srv, mock, db := newTestServer(t, stubResolver{user: user})
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM invitations WHERE token = \$1`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "email", "invited_by", "organization_id", "role_name",
			"dispatched_at", "accepted_at", "accepted_by", "created_at", "updated_at"}).
			AddRow("inv-1", "tok-1", "jane@example.com", "u-1", "org-1", "Monitor", nil, now, "u-2", now, now))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/invitations/accept", `{"token":"tok-1"}`))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["notice"], "already accepted")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrganization_ConflictMapsTo409(t *testing.T) {
	user := &persona.User{ID: "u-1", Name: "Jane"}
	srv, mock, db := newTestServer(t, stubResolver{user: user})
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM users\s+WHERE id = \$1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "updated_at"}).
			AddRow("u-1", "Jane", nil, now, now))
	mock.ExpectQuery(`FROM organizations WHERE name = \$1`).
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "description", "visibility", "created_at", "updated_at"}).
			AddRow("org-1", "u-9", "Acme", "", "APPLY", now, now))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/organizations", `{"name":"Acme"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideJoinRequest_ForbiddenWithoutPermission(t *testing.T) {
	user := &persona.User{ID: "u-5", Name: "Eve"}
	srv, mock, db := newTestServer(t, stubResolver{user: user})
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM organization_join_requests WHERE id = \$1`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "persona_id", "status", "created_at", "updated_at"}).
			AddRow("req-1", "org-1", "u-2", "PENDING", now, now))

	// Permission gate: operation exists, persona and resource resolve,
	// u-5 neither owns org-1 nor holds any path to it.
	mock.ExpectQuery(`FROM operations WHERE name = \$1`).
		WithArgs(OpJoinRequestDecide).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow("op-1", OpJoinRequestDecide, now, now))
	mock.ExpectQuery(`FROM users\s+WHERE id = \$1`).
		WithArgs("u-5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "updated_at"}).
			AddRow("u-5", "Eve", nil, now, now))
	mock.ExpectQuery(`FROM resources\s+WHERE id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "persona_id", "parent_id", "created_at", "updated_at"}).
			AddRow("org-1", "u-1", nil, now, now))
	mock.ExpectQuery(`FROM resources\s+WHERE id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "persona_id", "parent_id", "created_at", "updated_at"}).
			AddRow("org-1", "u-1", nil, now, now))
	mock.ExpectQuery(`SELECT role_name FROM permissions`).
		WithArgs("op-1").
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).AddRow("SuperUser"))
	mock.ExpectQuery(`FROM persona_resource_roles\s+WHERE persona_id = \$1 AND resource_id = \$2`).
		WithArgs("u-5", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}))
	mock.ExpectQuery(`FROM organization_memberships\s+WHERE member_id = \$1`).
		WithArgs("u-5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "member_id", "role_name", "created_at", "updated_at"}))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/join-requests/req-1/decision", `{"decision":"ACCEPT","role":"Monitor"}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
