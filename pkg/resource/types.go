package resource

import (
	"time"

	"github.com/wardenhq/warden/pkg/roles"
)

// Resource is a protected object. At least one of PersonaID (direct owner)
// and ParentID (another resource) is always set; both may be. The effective
// owner is the nearest ancestor, including the resource itself, with a
// persona set.
type Resource struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grant is a direct persona/resource/role edge. A persona may hold more
// than one role on the same resource.
type Grant struct {
	ID         string     `json:"id"`
	PersonaID  string     `json:"persona_id"`
	ResourceID string     `json:"resource_id"`
	Role       roles.Role `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
