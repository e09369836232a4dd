package permission

import (
	"context"
	"time"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/persona"
	"github.com/wardenhq/warden/pkg/resource"
	"github.com/wardenhq/warden/pkg/roles"
)

// Checker decides whether a persona may perform an operation on a resource.
// It only answers yes or no; turning a "no" into a Forbidden error is the
// caller's job.
type Checker struct {
	store     *Store
	cache     Cache
	resolver  *Resolver
	resources *resource.Store
	personas  *persona.Store
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewChecker creates a permission checker.
func NewChecker(
	store *Store,
	cache Cache,
	resolver *Resolver,
	resources *resource.Store,
	personas *persona.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Checker {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Checker{
		store:     store,
		cache:     cache,
		resolver:  resolver,
		resources: resources,
		personas:  personas,
		logger:    logger,
		metrics:   metrics,
	}
}

// IsAllowedTo reports whether the persona may perform the named operation on
// the resource. The resource's owner is allowed unconditionally, bypassing
// role checks entirely; everyone else needs a non-empty intersection between
// the operation's permitted roles and their effective roles. Unresolvable
// operation, resource or persona is an InvalidArgument.
func (c *Checker) IsAllowedTo(ctx context.Context, operationName, resourceID, personaID string) (bool, error) {
	start := time.Now()

	op, err := c.store.GetOperationByName(ctx, operationName)
	if err != nil {
		if errs.IsNotFound(err) {
			return false, errs.InvalidArgument("operation not found: %s", operationName)
		}
		return false, err
	}
	if _, err := c.personas.Get(ctx, personaID); err != nil {
		if errs.IsNotFound(err) {
			return false, errs.InvalidArgument("persona not found: %s", personaID)
		}
		return false, err
	}
	if _, err := c.resources.Get(ctx, resourceID); err != nil {
		if errs.IsNotFound(err) {
			return false, errs.InvalidArgument("resource not found: %s", resourceID)
		}
		return false, err
	}

	owner, err := c.resources.ResolveOwner(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if owner == personaID {
		c.metrics.ObservePermissionCheck(operationName, true, time.Since(start))
		return true, nil
	}

	permitted, err := c.permittedRoles(ctx, op)
	if err != nil {
		return false, err
	}

	granted, err := c.resolver.EffectiveRoles(ctx, personaID, resourceID)
	if err != nil {
		return false, err
	}

	allowed := permitted.Intersects(granted)
	c.metrics.ObservePermissionCheck(operationName, allowed, time.Since(start))

	c.logger.WithFields(map[string]interface{}{
		"operation": operationName,
		"resource":  resourceID,
		"persona":   personaID,
		"allowed":   allowed,
	}).Debug("permission check")

	return allowed, nil
}

// EffectiveRoles exposes the resolver through the checker, which is the
// facade the transport layer wires against.
func (c *Checker) EffectiveRoles(ctx context.Context, personaID, resourceID string) (roles.Set, error) {
	if _, err := c.personas.Get(ctx, personaID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.InvalidArgument("persona not found: %s", personaID)
		}
		return nil, err
	}
	if _, err := c.resources.Get(ctx, resourceID); err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.InvalidArgument("resource not found: %s", resourceID)
		}
		return nil, err
	}
	return c.resolver.EffectiveRoles(ctx, personaID, resourceID)
}

func (c *Checker) permittedRoles(ctx context.Context, op *Operation) (roles.Set, error) {
	cached, ok, err := c.cache.Get(ctx, op.Name)
	if err != nil {
		// A broken cache degrades to a store read, it never fails a check.
		c.logger.WithError(err).WithField("operation", op.Name).Warn("permitted-roles cache read failed")
	} else if ok {
		return cached, nil
	}

	permitted, err := c.store.PermittedRoles(ctx, op.ID)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, op.Name, permitted); err != nil {
		c.logger.WithError(err).WithField("operation", op.Name).Warn("permitted-roles cache write failed")
	}
	return permitted, nil
}
