// Package api is the REST adapter over the authorization engine. It does
// request validation, permission gating and status mapping; all business
// rules live in the underlying packages.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/permission"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
)

// Operation names the adapter gates its own endpoints with. They are part
// of the baseline configuration applied at bootstrap.
const (
	OpOrganizationTransfer = "organization-transfer"
	OpOrganizationDelete   = "organization-delete"
	OpInvitationCreate     = "invitation-create"
	OpJoinRequestDecide    = "join-request-decide"
)

// Server wires the HTTP routes to the engine.
type Server struct {
	router    *mux.Router
	checker   *permission.Checker
	perms     *permission.Store
	cache     permission.Cache
	service   *orgs.Service
	roleStore *roles.Store
	grants    *resource.GrantStore
	resolver  PrincipalResolver
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewServer creates the REST adapter.
func NewServer(
	checker *permission.Checker,
	perms *permission.Store,
	cache permission.Cache,
	service *orgs.Service,
	roleStore *roles.Store,
	grants *resource.GrantStore,
	resolver PrincipalResolver,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		checker:   checker,
		perms:     perms,
		cache:     cache,
		service:   service,
		roleStore: roleStore,
		grants:    grants,
		resolver:  resolver,
		logger:    logger,
		metrics:   metrics,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.principalMiddleware)
	v1.Use(s.instrument)

	v1.HandleFunc("/roles", s.handleListRoles).Methods(http.MethodGet)
	v1.HandleFunc("/grants", s.handleListOwnGrants).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/check", s.handleCheck).Methods(http.MethodPost)
	v1.HandleFunc("/resources/{id}/effective-roles", s.handleEffectiveRoles).Methods(http.MethodGet)

	v1.HandleFunc("/operations/{name}", s.handleConfigureOperation).Methods(http.MethodPut)
	v1.HandleFunc("/operations/{name}", s.handleGetOperation).Methods(http.MethodGet)

	v1.HandleFunc("/organizations", s.handleCreateOrganization).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}", s.handleGetOrganization).Methods(http.MethodGet)
	v1.HandleFunc("/organizations/{id}", s.handleDeleteOrganization).Methods(http.MethodDelete)
	v1.HandleFunc("/organizations/{id}/transfer", s.handleTransferOrganization).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}/organizations", s.handleListSubOrganizations).Methods(http.MethodGet)

	v1.HandleFunc("/organizations/{id}/invitations", s.handleCreateInvitation).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}/invitations", s.handleListInvitations).Methods(http.MethodGet)
	v1.HandleFunc("/invitations/accept", s.handleAcceptInvitation).Methods(http.MethodPost)

	v1.HandleFunc("/organizations/{id}/join-requests", s.handleCreateJoinRequest).Methods(http.MethodPost)
	v1.HandleFunc("/organizations/{id}/join-requests", s.handleListJoinRequests).Methods(http.MethodGet)
	v1.HandleFunc("/join-requests", s.handleListOwnJoinRequests).Methods(http.MethodGet)
	v1.HandleFunc("/join-requests/{id}/decision", s.handleDecideJoinRequest).Methods(http.MethodPost)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requirePermission gates a mutating endpoint on the checker. The checker
// only answers yes or no; the Forbidden error is produced here.
func (s *Server) requirePermission(w http.ResponseWriter, r *http.Request, operation, resourceID string) bool {
	p, ok := PersonaFromContext(r.Context())
	if !ok {
		writeError(w, errs.Forbidden("no acting persona"))
		return false
	}

	allowed, err := s.checker.IsAllowedTo(r.Context(), operation, resourceID, p.PersonaID())
	if err != nil {
		writeError(w, err)
		return false
	}
	if !allowed {
		writeError(w, errs.Forbidden("%s is not allowed to %s", p.PersonaID(), operation))
		return false
	}
	return true
}

// requireOrgAccess gates read endpoints on being the owner or a member of
// the organization.
func (s *Server) requireOrgAccess(w http.ResponseWriter, r *http.Request, orgID string) *persona.Organization {
	p, ok := PersonaFromContext(r.Context())
	if !ok {
		writeError(w, errs.Forbidden("no acting persona"))
		return nil
	}

	org, err := s.service.Store().Get(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return nil
	}

	if org.OwnerID == p.PersonaID() || org.ID == p.PersonaID() {
		return org
	}
	isMember, err := s.service.Members().IsMember(r.Context(), org.ID, p.PersonaID())
	if err != nil {
		writeError(w, err)
		return nil
	}
	if !isMember {
		writeError(w, errs.Forbidden("no access to organization %s", org.ID))
		return nil
	}
	return org
}
