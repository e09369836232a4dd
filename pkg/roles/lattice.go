package roles

import (
	"github.com/wardenhq/warden/pkg/errs"
)

// Role is one of the seven fixed privilege labels. The set is closed: no
// dynamic roles exist, and every role name reaching this package must be one
// of the constants below.
type Role string

const (
	Monitor       Role = "Monitor"
	Operator      Role = "Operator"
	Maintainer    Role = "Maintainer"
	Deployer      Role = "Deployer"
	Administrator Role = "Administrator"
	Auditor       Role = "Auditor"
	SuperUser     Role = "SuperUser"
)

// All lists every role, weakest first.
func All() []Role {
	return []Role{Monitor, Operator, Maintainer, Deployer, Administrator, Auditor, SuperUser}
}

// Descriptions of the fixed roles, keyed by role.
var Descriptions = map[Role]string{
	Monitor:       "Has read-only access to runtime state of a resource.",
	Operator:      "Can perform runtime operations, like restarting a resource.",
	Maintainer:    "Can change the configuration and deploy into a resource.",
	Deployer:      "Can deploy applications into a resource.",
	Administrator: "Can manage the configuration and users of a resource.",
	Auditor:       "Has read-only access to everything, including audit data.",
	SuperUser:     "Has complete access to a resource.",
}

// dominates lists the direct edges of the dominance relation, weaker role to
// the stronger roles immediately above it. Both closures below are derived
// from this single table so they cannot diverge.
var dominates = map[Role][]Role{
	Monitor:       {Operator, Auditor},
	Operator:      {Maintainer},
	Maintainer:    {Deployer, Administrator},
	Deployer:      {SuperUser},
	Administrator: {SuperUser},
	Auditor:       {SuperUser},
	SuperUser:     nil,
}

// dominatedBy is the reverse adjacency, built once at init.
var dominatedBy = func() map[Role][]Role {
	rev := make(map[Role][]Role, len(dominates))
	for weaker, strongers := range dominates {
		if _, ok := rev[weaker]; !ok {
			rev[weaker] = nil
		}
		for _, stronger := range strongers {
			rev[stronger] = append(rev[stronger], weaker)
		}
	}
	return rev
}()

// Valid reports whether r is one of the seven fixed roles.
func Valid(r Role) bool {
	_, ok := dominates[r]
	return ok
}

// Parse converts a role name into a Role, failing on unknown names. An
// unknown name in persisted data is a data-integrity violation, so the error
// is internal rather than a user-facing condition.
func Parse(name string) (Role, error) {
	r := Role(name)
	if !Valid(r) {
		return "", errs.Internal("unknown role: %q", name)
	}
	return r, nil
}

// ImplicitUserRoles returns the transitive downward closure of r: every role
// a holder of r also effectively holds. SuperUser implies all six other
// roles; Monitor implies none.
func ImplicitUserRoles(r Role) (Set, error) {
	return closure(r, dominatedBy)
}

// ImplicitPermittedRoles returns the transitive upward closure of r: every
// role that is also permitted wherever r is permitted, since more privilege
// implies more access. Monitor admits all six other roles; SuperUser admits
// none.
func ImplicitPermittedRoles(r Role) (Set, error) {
	return closure(r, dominates)
}

func closure(r Role, edges map[Role][]Role) (Set, error) {
	if !Valid(r) {
		return nil, errs.Internal("unknown role: %q", r)
	}
	out := Set{}
	stack := append([]Role(nil), edges[r]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out.Contains(next) {
			continue
		}
		out.Add(next)
		stack = append(stack, edges[next]...)
	}
	return out, nil
}
