package persona

import (
	"time"
)

// Kind discriminates the two persona variants. The set is closed: every
// principal in the graph is either a user or an organization.
type Kind string

const (
	KindUser         Kind = "user"
	KindOrganization Kind = "organization"
)

// Persona is any principal that can own resources or hold roles: a real
// user, or an organization acting as a non-human principal. Graph algorithms
// operate on this capability rather than on the concrete variant.
type Persona interface {
	PersonaID() string
	PersonaKind() Kind
}

// Visibility controls whether outsiders may apply to join an organization.
type Visibility string

const (
	// VisibilityApply allows any persona to create a join request.
	VisibilityApply Visibility = "APPLY"
	// VisibilityPrivate rejects join requests; membership is by
	// invitation only.
	VisibilityPrivate Visibility = "PRIVATE"
)

// User is an end-user known to the identity provider. The email may be
// absent when the identity provider does not supply one.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonaID implements Persona.
func (u *User) PersonaID() string { return u.ID }

// PersonaKind implements Persona.
func (u *User) PersonaKind() Kind { return KindUser }

// Organization is a non-human principal. Organizations are personas
// themselves, so they can own or belong to other organizations; the
// ownership/membership graph is not bipartite.
type Organization struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PersonaID implements Persona.
func (o *Organization) PersonaID() string { return o.ID }

// PersonaKind implements Persona.
func (o *Organization) PersonaKind() Kind { return KindOrganization }
