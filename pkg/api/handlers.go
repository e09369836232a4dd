package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/roles"
)

func decodeBody(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return errs.InvalidArgument("malformed request body")
	}
	return nil
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	records, err := s.roleStore.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": records})
}

// handleListOwnGrants lists the direct grants the acting persona holds,
// across all resources. Inherited and implicit roles are not included; use
// the effective-roles endpoint for those.
func (s *Server) handleListOwnGrants(w http.ResponseWriter, r *http.Request) {
	p, _ := PersonaFromContext(r.Context())

	list, err := s.grants.ListForPersona(r.Context(), p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": list})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Operation  string `json:"operation"`
		ResourceID string `json:"resource_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	p, _ := PersonaFromContext(r.Context())
	allowed, err := s.checker.IsAllowedTo(r.Context(), body.Operation, body.ResourceID, p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (s *Server) handleEffectiveRoles(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["id"]

	personaID := r.URL.Query().Get("persona")
	if personaID == "" {
		p, _ := PersonaFromContext(r.Context())
		personaID = p.PersonaID()
	}

	set, err := s.checker.EffectiveRoles(r.Context(), personaID, resourceID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"persona_id":  personaID,
		"resource_id": resourceID,
		"roles":       set.Sorted(),
	})
}

func (s *Server) handleConfigureOperation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var body struct {
		Clear bool     `json:"clear"`
		Roles []string `json:"roles"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	setup := s.perms.Configure(name, s.cache)
	if body.Clear {
		setup.Clear()
	}
	for _, roleName := range body.Roles {
		role := roles.Role(roleName)
		if !roles.Valid(role) {
			writeError(w, errs.InvalidArgument("unknown role: %q", roleName))
			return
		}
		setup.Require(role)
	}

	if err := setup.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	op, err := s.perms.GetOperationByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	permitted, err := s.perms.PermittedRoles(r.Context(), op.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operation":       op,
		"permitted_roles": permitted.Sorted(),
	})
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Visibility  string `json:"visibility"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Visibility == "" {
		body.Visibility = string(persona.VisibilityApply)
	}

	p, _ := PersonaFromContext(r.Context())
	org, err := s.service.CreateOrganization(r.Context(), body.Name, body.Description, persona.Visibility(body.Visibility), p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, org)
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org := s.requireOrgAccess(w, r, mux.Vars(r)["id"])
	if org == nil {
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *Server) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["id"]
	if !s.requirePermission(w, r, OpOrganizationDelete, orgID) {
		return
	}

	if err := s.service.DeleteOrganization(r.Context(), orgID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransferOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["id"]

	var body struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.NewOwnerID == "" {
		writeError(w, errs.InvalidArgument("new_owner_id is required"))
		return
	}

	if !s.requirePermission(w, r, OpOrganizationTransfer, orgID) {
		return
	}

	if err := s.service.TransferOrganization(r.Context(), orgID, body.NewOwnerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubOrganizations(w http.ResponseWriter, r *http.Request) {
	org := s.requireOrgAccess(w, r, mux.Vars(r)["id"])
	if org == nil {
		return
	}

	suborgs, err := s.service.Store().ListOwnedBy(r.Context(), org.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organizations": suborgs})
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["id"]

	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if !s.requirePermission(w, r, OpInvitationCreate, orgID) {
		return
	}

	p, _ := PersonaFromContext(r.Context())
	inv, err := s.service.CreateInvitation(r.Context(), body.Email, p.PersonaID(), orgID, body.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	org := s.requireOrgAccess(w, r, mux.Vars(r)["id"])
	if org == nil {
		return
	}

	var (
		list []orgs.Invitation
		err  error
	)
	if r.URL.Query().Get("pending") == "true" {
		list, err = s.service.Invitations().ListPendingForOrganization(r.Context(), org.ID)
	} else {
		list, err = s.service.Invitations().ListForOrganization(r.Context(), org.ID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": list})
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Token == "" {
		writeError(w, errs.InvalidArgument("token is required"))
		return
	}

	p, _ := PersonaFromContext(r.Context())
	if p.PersonaKind() != persona.KindUser {
		writeError(w, errs.InvalidArgument("invitations can only be accepted as a user"))
		return
	}

	inv, alreadyAccepted, err := s.service.AcceptInvitation(r.Context(), body.Token, p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}

	if alreadyAccepted {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"invitation": inv,
			"notice":     "invitation was already accepted by this user",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitation": inv})
}

func (s *Server) handleCreateJoinRequest(w http.ResponseWriter, r *http.Request) {
	p, _ := PersonaFromContext(r.Context())

	req, err := s.service.CreateJoinRequest(r.Context(), mux.Vars(r)["id"], p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleListJoinRequests(w http.ResponseWriter, r *http.Request) {
	org := s.requireOrgAccess(w, r, mux.Vars(r)["id"])
	if org == nil {
		return
	}

	list, err := s.service.JoinRequests().ListForOrganization(r.Context(), org.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"join_requests": list})
}

func (s *Server) handleListOwnJoinRequests(w http.ResponseWriter, r *http.Request) {
	p, _ := PersonaFromContext(r.Context())

	list, err := s.service.JoinRequests().ListForPersona(r.Context(), p.PersonaID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"join_requests": list})
}

func (s *Server) handleDecideJoinRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	var body struct {
		Decision string `json:"decision"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req, err := s.service.JoinRequests().Get(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The gate lives on the organization's backing resource.
	if !s.requirePermission(w, r, OpJoinRequestDecide, req.OrganizationID) {
		return
	}

	decided, outcome, err := s.service.DecideJoinRequest(r.Context(), requestID, orgs.Decision(body.Decision), body.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	switch outcome {
	case orgs.OutcomeAlreadyDecided:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"join_request": decided,
			"notice":       "decision was already applied",
		})
	case orgs.OutcomeForceRejected:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"join_request": decided,
			"notice":       "persona already holds a membership, request was rejected",
			"forced":       true,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"join_request": decided})
	}
}
