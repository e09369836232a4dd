package orgs

import (
	"time"

	"github.com/wardenhq/warden/pkg/roles"
)

// Membership is a persona's standing within an organization. It gates access
// to resources the organization can reach; it is not itself a resource grant.
type Membership struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	MemberID       string     `json:"member_id"`
	Role           roles.Role `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Invitation asks an email address to join an organization with a given
// role. The token is the capability credential: whoever presents it may
// accept. DispatchedAt and AcceptedAt are independent timestamps; an
// invitation may be dispatched many times but accepted at most once.
type Invitation struct {
	ID             string     `json:"id"`
	Token          string     `json:"-"`
	Email          string     `json:"email"`
	InvitedBy      string     `json:"invited_by"`
	OrganizationID string     `json:"organization_id"`
	Role           roles.Role `json:"role"`
	DispatchedAt   *time.Time `json:"dispatched_at,omitempty"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy     string     `json:"accepted_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Accepted reports whether the invitation has reached its terminal state.
func (i *Invitation) Accepted() bool { return i.AcceptedAt != nil }

// JoinRequestStatus is the state of a join request.
type JoinRequestStatus string

const (
	StatusPending  JoinRequestStatus = "PENDING"
	StatusAccepted JoinRequestStatus = "ACCEPTED"
	StatusRejected JoinRequestStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transition.
func (s JoinRequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// JoinRequest is a persona asking to join an organization. Its backing
// resource shares the request's ID and is owned by the organization, with
// the requester granted SuperUser on it so they can manage their own
// request.
type JoinRequest struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	PersonaID      string            `json:"persona_id"`
	Status         JoinRequestStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Decision is the verdict applied to a pending join request.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// DecisionOutcome distinguishes how a decision was applied.
type DecisionOutcome int

const (
	// OutcomeApplied means the request transitioned for the first time.
	OutcomeApplied DecisionOutcome = iota

	// OutcomeAlreadyDecided means the same terminal decision was re-applied.
	// The request is unchanged and the caller reports success with a notice.
	OutcomeAlreadyDecided

	// OutcomeForceRejected means the persona already held a membership at
	// decision time, so the request was rejected regardless of the
	// requested decision.
	OutcomeForceRejected
)
