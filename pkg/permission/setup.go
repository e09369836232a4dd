package permission

import (
	"context"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/roles"
)

// Setup is a builder that accumulates the permitted-role set for one
// operation and flushes it on Commit. Require expands the given role through
// the lattice: permitting a role permits every stronger role too.
//
//	err := store.Configure("organization-delete", cache).
//		Require(roles.SuperUser).
//		Commit(ctx)
//
// Commit only writes when the resulting set differs from what is persisted,
// with one exception: after Clear the write always happens, even when the
// final set equals the prior state. A clear-and-reconfigure is an observable
// state reset, not a no-op.
type Setup struct {
	store         *Store
	cache         Cache
	operationName string
	pending       roles.Set
	cleared       bool
	err           error
}

// Configure starts a builder for the named operation. The operation is
// created on Commit if it does not exist yet.
func (s *Store) Configure(operationName string, cache Cache) *Setup {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Setup{
		store:         s,
		cache:         cache,
		operationName: operationName,
		pending:       roles.Set{},
	}
}

// Require adds a role, plus every role implicitly permitted alongside it,
// to the pending set.
func (b *Setup) Require(role roles.Role) *Setup {
	if b.err != nil {
		return b
	}
	if !roles.Valid(role) {
		b.err = errs.InvalidArgument("unknown role: %q", role)
		return b
	}

	b.pending.Add(role)
	implied, err := roles.ImplicitPermittedRoles(role)
	if err != nil {
		b.err = err
		return b
	}
	b.pending.AddAll(implied)
	return b
}

// Clear drops the operation's current rows before the pending roles are
// applied, and forces Commit to write even when the final set matches the
// prior one.
func (b *Setup) Clear() *Setup {
	if b.err != nil {
		return b
	}
	b.cleared = true
	b.pending = roles.Set{}
	return b
}

// Commit flushes the builder. Rows are rewritten one at a time since the
// store guarantees only single-row atomicity; the per-operation cache entry
// is invalidated afterwards.
func (b *Setup) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}

	op, err := b.store.EnsureOperation(ctx, b.operationName)
	if err != nil {
		return err
	}

	current, err := b.store.PermittedRoles(ctx, op.ID)
	if err != nil {
		return err
	}

	target := b.pending.Clone()
	if !b.cleared {
		target.AddAll(current)
	}

	if !b.cleared && target.Equal(current) {
		return nil
	}

	for _, role := range current.Sorted() {
		if target.Contains(role) && !b.cleared {
			continue
		}
		if err := b.store.deletePermission(ctx, op.ID, role); err != nil {
			return err
		}
	}
	for _, role := range target.Sorted() {
		if err := b.store.insertPermission(ctx, op.ID, role); err != nil {
			return err
		}
	}

	return b.cache.Invalidate(ctx, b.operationName)
}
