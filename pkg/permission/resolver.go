package permission

import (
	"context"
	"time"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/orgs"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
)

// Resolver computes the effective roles a persona holds on a resource by
// combining direct grants, organization memberships and the role lattice.
type Resolver struct {
	grants  *resource.GrantStore
	members *orgs.MembershipStore
	metrics *observability.Metrics
}

// NewResolver creates an effective-role resolver.
func NewResolver(grants *resource.GrantStore, members *orgs.MembershipStore, metrics *observability.Metrics) *Resolver {
	return &Resolver{grants: grants, members: members, metrics: metrics}
}

// EffectiveRoles resolves the full role set for (persona, resource).
//
// Direct grants win outright: when the persona holds any direct grant on the
// resource, the result is those grants closed downward under the lattice,
// and organizational paths contribute nothing. Otherwise each membership
// contributes the persona's standing in that organization intersected with
// what the organization itself can reach on the resource, and the
// contributions are unioned. Access through an organization can never exceed
// the organization's own access.
//
// Membership graphs are expected to be acyclic; a cycle in the persisted
// graph is reported rather than recursed into.
func (r *Resolver) EffectiveRoles(ctx context.Context, personaID, resourceID string) (roles.Set, error) {
	start := time.Now()
	set, err := r.resolve(ctx, personaID, resourceID, make(map[string]bool))
	r.metrics.EffectiveRolesDuration.Observe(time.Since(start).Seconds())
	return set, err
}

func (r *Resolver) resolve(ctx context.Context, personaID, resourceID string, path map[string]bool) (roles.Set, error) {
	if path[personaID] {
		r.metrics.MembershipCyclesTotal.Inc()
		return nil, errs.Cycle("membership cycle detected at persona %s", personaID)
	}
	path[personaID] = true
	defer delete(path, personaID)

	direct, err := r.grants.RolesFor(ctx, personaID, resourceID)
	if err != nil {
		return nil, err
	}

	if len(direct) > 0 {
		out := direct.Clone()
		for role := range direct {
			implied, err := roles.ImplicitUserRoles(role)
			if err != nil {
				return nil, err
			}
			out.AddAll(implied)
		}
		return out, nil
	}

	memberships, err := r.members.ListForMember(ctx, personaID)
	if err != nil {
		return nil, err
	}

	out := roles.Set{}
	for _, m := range memberships {
		orgRoles, err := r.resolve(ctx, m.OrganizationID, resourceID, path)
		if err != nil {
			return nil, err
		}
		if len(orgRoles) == 0 {
			continue
		}

		standing := roles.NewSet(m.Role)
		implied, err := roles.ImplicitUserRoles(m.Role)
		if err != nil {
			return nil, err
		}
		standing.AddAll(implied)

		out.AddAll(standing.Intersect(orgRoles))
	}

	return out, nil
}
