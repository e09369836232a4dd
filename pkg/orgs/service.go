package orgs

import (
	"context"
	"time"

	"github.com/wardenhq/warden/pkg/async"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/notify"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
)

const dispatchTimeout = 30 * time.Second

// Service orchestrates the organization lifecycle and the two
// membership-acquisition workflows. Multi-step mutations assume only
// single-row atomicity from the store, so every sequence is ordered to be
// re-drivable after a crash: memberships and grants are created before the
// triggering record is marked terminal.
type Service struct {
	store        *Store
	members      *MembershipStore
	invitations  *InvitationStore
	joinRequests *JoinRequestStore
	resources    *resource.Store
	grants       *resource.GrantStore
	personas     *persona.Store
	notifier     notify.Notifier
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewService creates the organization service.
func NewService(
	store *Store,
	members *MembershipStore,
	invitations *InvitationStore,
	joinRequests *JoinRequestStore,
	resources *resource.Store,
	grants *resource.GrantStore,
	personas *persona.Store,
	notifier notify.Notifier,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		store:        store,
		members:      members,
		invitations:  invitations,
		joinRequests: joinRequests,
		resources:    resources,
		grants:       grants,
		personas:     personas,
		notifier:     notifier,
		logger:       logger,
		metrics:      metrics,
	}
}

// Store exposes the organization row store for read paths.
func (s *Service) Store() *Store { return s.store }

// Members exposes the membership store for read paths and the resolver.
func (s *Service) Members() *MembershipStore { return s.members }

// Invitations exposes the invitation store for read paths and the sweep.
func (s *Service) Invitations() *InvitationStore { return s.invitations }

// JoinRequests exposes the join-request store for read paths.
func (s *Service) JoinRequests() *JoinRequestStore { return s.joinRequests }

// CreateOrganization creates an organization plus its backing resource. The
// backing resource shares the organization's ID and is owned by the owner.
// The owner gets a direct SuperUser grant and a SuperUser membership, and
// the organization itself also gets SuperUser on its own resource so
// sub-resources created under it see it as a capable actor in the graph.
func (s *Service) CreateOrganization(ctx context.Context, name, description string, visibility persona.Visibility, ownerID string) (*persona.Organization, error) {
	if visibility != persona.VisibilityApply && visibility != persona.VisibilityPrivate {
		return nil, errs.InvalidArgument("unknown visibility: %q", visibility)
	}
	if _, err := s.personas.Get(ctx, ownerID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.InvalidArgument("owner not found: %s", ownerID)
		}
		return nil, err
	}

	org := &persona.Organization{
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Visibility:  visibility,
	}
	if err := s.store.Create(ctx, org); err != nil {
		return nil, err
	}

	res := &resource.Resource{ID: org.ID, PersonaID: ownerID}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, err
	}

	if _, err := s.grants.Grant(ctx, ownerID, org.ID, roles.SuperUser); err != nil {
		return nil, err
	}
	if _, err := s.grants.Grant(ctx, org.ID, org.ID, roles.SuperUser); err != nil {
		return nil, err
	}
	if _, err := s.members.Create(ctx, org.ID, ownerID, roles.SuperUser); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"organization": org.ID,
		"owner":        ownerID,
	}).Info("organization created")
	return org, nil
}

// TransferOrganization moves ownership to a new persona. The new owner's
// pre-existing memberships are dropped and replaced with a fresh SuperUser
// membership. The old owner's membership and grants are deliberately left
// in place; operators revoke those separately.
func (s *Service) TransferOrganization(ctx context.Context, orgID, newOwnerID string) error {
	org, err := s.store.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if _, err := s.personas.Get(ctx, newOwnerID); err != nil {
		if errs.IsNotFound(err) {
			return errs.InvalidArgument("new owner not found: %s", newOwnerID)
		}
		return err
	}

	if err := s.members.DeleteForMember(ctx, org.ID, newOwnerID); err != nil {
		return err
	}
	if _, err := s.members.Create(ctx, org.ID, newOwnerID, roles.SuperUser); err != nil {
		return err
	}
	if err := s.resources.Transfer(ctx, org.ID, newOwnerID); err != nil {
		return err
	}
	if err := s.store.UpdateOwner(ctx, org.ID, newOwnerID); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"organization": org.ID,
		"new_owner":    newOwnerID,
	}).Info("organization transferred")
	return nil
}

// DeleteOrganization removes an organization and cascades over everything
// hanging off it. It refuses while sub-organizations or foreign resources
// still point at the organization. Every backing resource is swept clean of
// grants before it is deleted, whoever holds them, so grants left behind by
// ownership transfers or manual assignment cannot strand the resource, and
// a retry after a partial failure converges.
func (s *Service) DeleteOrganization(ctx context.Context, orgID string) error {
	org, err := s.store.Get(ctx, orgID)
	if err != nil {
		return err
	}

	suborgs, err := s.store.ListOwnedBy(ctx, org.ID)
	if err != nil {
		return err
	}
	if len(suborgs) > 0 {
		return errs.Conflict("organization %s still owns %d sub-organizations", org.ID, len(suborgs))
	}

	requests, err := s.joinRequests.ListForOrganization(ctx, org.ID)
	if err != nil {
		return err
	}
	requestResources := make(map[string]bool, len(requests))
	for _, req := range requests {
		requestResources[req.ID] = true
	}

	owned, err := s.resources.ListOwnedBy(ctx, org.ID)
	if err != nil {
		return err
	}
	for _, res := range owned {
		// The backing resources of the organization itself and of its
		// join requests are part of the cascade, not foreign holdings.
		if res.ID != org.ID && !requestResources[res.ID] {
			return errs.Conflict("organization %s still owns resources", org.ID)
		}
	}

	if err := s.invitations.DeleteForOrganization(ctx, org.ID); err != nil {
		return err
	}

	for _, req := range requests {
		if err := s.revokeResourceGrants(ctx, req.ID); err != nil {
			return err
		}
		if err := s.resources.Delete(ctx, req.ID); err != nil {
			return err
		}
	}
	if err := s.joinRequests.DeleteForOrganization(ctx, org.ID); err != nil {
		return err
	}

	if err := s.members.DeleteAllForOrganization(ctx, org.ID); err != nil {
		return err
	}

	if err := s.revokeResourceGrants(ctx, org.ID); err != nil {
		return err
	}
	if err := s.resources.Delete(ctx, org.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, org.ID); err != nil {
		return err
	}

	s.logger.WithField("organization", org.ID).Info("organization deleted")
	return nil
}

// revokeResourceGrants removes every grant on a resource, single-row
// deletes in listing order.
func (s *Service) revokeResourceGrants(ctx context.Context, resourceID string) error {
	held, err := s.grants.ListForResource(ctx, resourceID)
	if err != nil {
		return err
	}
	for _, g := range held {
		if err := s.grants.Revoke(ctx, g.PersonaID, g.ResourceID, g.Role); err != nil {
			return err
		}
	}
	return nil
}

// CreateInvitation creates an invitation and fires the notifier
// asynchronously. A notifier failure is logged and retried later by the
// re-dispatch sweep; it never rolls back the invitation.
func (s *Service) CreateInvitation(ctx context.Context, email, inviterID, orgID, roleName string) (*Invitation, error) {
	role := roles.Role(roleName)
	if !roles.Valid(role) {
		return nil, errs.InvalidArgument("unknown role: %q", roleName)
	}
	if email == "" {
		return nil, errs.InvalidArgument("invitation email is required")
	}
	org, err := s.store.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if _, err := s.personas.Get(ctx, inviterID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.InvalidArgument("inviter not found: %s", inviterID)
		}
		return nil, err
	}

	inv, err := s.invitations.Create(ctx, email, inviterID, org.ID, role)
	if err != nil {
		return nil, err
	}
	s.metrics.InvitationsCreatedTotal.Inc()

	s.dispatchInvitation(inv, org)
	return inv, nil
}

func (s *Service) dispatchInvitation(inv *Invitation, org *persona.Organization) {
	invitationID := inv.ID
	props := map[string]string{
		"email":        inv.Email,
		"organization": org.Name,
		"role":         string(inv.Role),
		"token":        inv.Token,
	}

	async.SafeGo(context.Background(), s.logger, dispatchTimeout, "invitation dispatch", func(ctx context.Context) error {
		if err := s.notifier.Notify(ctx, notify.TemplateInvitation, props); err != nil {
			s.metrics.NotifierDispatchesTotal.WithLabelValues(notify.TemplateInvitation, "error").Inc()
			return err
		}
		s.metrics.NotifierDispatchesTotal.WithLabelValues(notify.TemplateInvitation, "ok").Inc()
		return s.invitations.MarkDispatched(ctx, invitationID)
	})
}

// AcceptInvitation redeems an invitation token. Accepting your own
// invitation is rejected. Re-acceptance by the same user is idempotent and
// reported through the notice flag; acceptance by a different user after the
// first is a conflict. The membership is created before the invitation is
// stamped accepted so a crash in between leaves a pending, re-drivable
// invitation.
func (s *Service) AcceptInvitation(ctx context.Context, token, acceptingUserID string) (inv *Invitation, alreadyAccepted bool, err error) {
	inv, err = s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if acceptingUserID == inv.InvitedBy {
		return nil, false, errs.Conflict("invitation cannot be accepted by its inviter")
	}

	if inv.Accepted() {
		if inv.AcceptedBy == acceptingUserID {
			return inv, true, nil
		}
		return nil, false, errs.Conflict("invitation already accepted by another user")
	}

	if _, err := s.personas.GetUser(ctx, acceptingUserID); err != nil {
		if errs.IsNotFound(err) {
			return nil, false, errs.InvalidArgument("accepting user not found: %s", acceptingUserID)
		}
		return nil, false, err
	}

	if _, err := s.members.Create(ctx, inv.OrganizationID, acceptingUserID, inv.Role); err != nil {
		return nil, false, err
	}
	if err := s.invitations.MarkAccepted(ctx, inv.ID, acceptingUserID); err != nil {
		return nil, false, err
	}
	s.metrics.InvitationsAcceptedTotal.Inc()

	now := time.Now()
	inv.AcceptedAt = &now
	inv.AcceptedBy = acceptingUserID
	return inv, false, nil
}

// CreateJoinRequest files a request to join an organization that accepts
// applications. The request gets a backing resource sharing its ID, owned
// by the organization, with the requester granted SuperUser on it so they
// can manage their own request.
func (s *Service) CreateJoinRequest(ctx context.Context, orgID, personaID string) (*JoinRequest, error) {
	org, err := s.store.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Visibility == persona.VisibilityPrivate {
		return nil, errs.Conflict("organization %s is private", org.ID)
	}
	if _, err := s.personas.Get(ctx, personaID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.InvalidArgument("persona not found: %s", personaID)
		}
		return nil, err
	}

	req, err := s.joinRequests.Create(ctx, org.ID, personaID)
	if err != nil {
		return nil, err
	}

	res := &resource.Resource{ID: req.ID, PersonaID: org.ID}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, err
	}
	if _, err := s.grants.Grant(ctx, personaID, req.ID, roles.SuperUser); err != nil {
		return nil, err
	}

	return req, nil
}

// DecideJoinRequest applies an accept or reject verdict. Re-applying the
// same terminal decision succeeds with a notice; a different decision after
// a terminal one is a conflict. If the persona already holds a membership
// when the verdict lands, the request is force-rejected regardless of the
// requested decision.
func (s *Service) DecideJoinRequest(ctx context.Context, requestID string, decision Decision, grantedRole string) (*JoinRequest, DecisionOutcome, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, OutcomeApplied, errs.InvalidArgument("unknown decision: %q", decision)
	}

	req, err := s.joinRequests.Get(ctx, requestID)
	if err != nil {
		return nil, OutcomeApplied, err
	}

	if req.Status.Terminal() {
		if (decision == DecisionAccept && req.Status == StatusAccepted) ||
			(decision == DecisionReject && req.Status == StatusRejected) {
			return req, OutcomeAlreadyDecided, nil
		}
		return nil, OutcomeApplied, errs.Conflict("join request %s already %s", req.ID, req.Status)
	}

	isMember, err := s.members.IsMember(ctx, req.OrganizationID, req.PersonaID)
	if err != nil {
		return nil, OutcomeApplied, err
	}
	if isMember {
		if err := s.joinRequests.UpdateStatus(ctx, req.ID, StatusPending, StatusRejected); err != nil {
			return nil, OutcomeApplied, err
		}
		req.Status = StatusRejected
		s.metrics.JoinRequestDecisionsTotal.WithLabelValues("force_rejected").Inc()
		s.notifyJoinRequest(req, notify.TemplateJoinRequestRejected)
		return req, OutcomeForceRejected, nil
	}

	switch decision {
	case DecisionAccept:
		role := roles.Role(grantedRole)
		if !roles.Valid(role) {
			return nil, OutcomeApplied, errs.InvalidArgument("unknown role: %q", grantedRole)
		}
		if _, err := s.members.Create(ctx, req.OrganizationID, req.PersonaID, role); err != nil {
			return nil, OutcomeApplied, err
		}
		if err := s.joinRequests.UpdateStatus(ctx, req.ID, StatusPending, StatusAccepted); err != nil {
			return nil, OutcomeApplied, err
		}
		req.Status = StatusAccepted
		s.metrics.JoinRequestDecisionsTotal.WithLabelValues("accepted").Inc()
		s.notifyJoinRequest(req, notify.TemplateJoinRequestAccepted)

	case DecisionReject:
		if err := s.joinRequests.UpdateStatus(ctx, req.ID, StatusPending, StatusRejected); err != nil {
			return nil, OutcomeApplied, err
		}
		req.Status = StatusRejected
		s.metrics.JoinRequestDecisionsTotal.WithLabelValues("rejected").Inc()
		s.notifyJoinRequest(req, notify.TemplateJoinRequestRejected)
	}

	return req, OutcomeApplied, nil
}

func (s *Service) notifyJoinRequest(req *JoinRequest, template string) {
	props := map[string]string{
		"organization": req.OrganizationID,
		"persona":      req.PersonaID,
		"request":      req.ID,
	}

	async.SafeGo(context.Background(), s.logger, dispatchTimeout, "join request notification", func(ctx context.Context) error {
		if err := s.notifier.Notify(ctx, template, props); err != nil {
			s.metrics.NotifierDispatchesTotal.WithLabelValues(template, "error").Inc()
			return err
		}
		s.metrics.NotifierDispatchesTotal.WithLabelValues(template, "ok").Inc()
		return nil
	})
}
