// Package permission implements the authorization decision procedure: the
// operation/permitted-roles configuration, the effective-role resolver and
// the permission checker.
package permission

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/roles"
)

// Operation is a named action guarded by the checker, e.g.
// "organization-create". Unique by name.
type Operation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store handles operation and permission row persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOperationByName retrieves an operation by its unique name.
func (s *Store) GetOperationByName(ctx context.Context, name string) (*Operation, error) {
	query := `SELECT id, name, created_at, updated_at FROM operations WHERE name = $1`

	var op Operation
	err := s.db.QueryRowContext(ctx, query, name).Scan(&op.ID, &op.Name, &op.CreatedAt, &op.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("operation not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return &op, nil
}

// EnsureOperation returns the operation with the given name, creating it if
// it does not exist yet.
func (s *Store) EnsureOperation(ctx context.Context, name string) (*Operation, error) {
	if name == "" {
		return nil, errs.InvalidArgument("operation name is required")
	}

	op, err := s.GetOperationByName(ctx, name)
	if err == nil {
		return op, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	query := `
		INSERT INTO operations (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`

	op = &Operation{ID: uuid.NewString(), Name: name}
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, op.ID, op.Name, now); err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}

	op.CreatedAt = now
	op.UpdatedAt = now
	return op, nil
}

// PermittedRoles returns the denormalized set of roles permitted to perform
// the operation.
func (s *Store) PermittedRoles(ctx context.Context, operationID string) (roles.Set, error) {
	query := `SELECT role_name FROM permissions WHERE operation_id = $1`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get permitted roles: %w", err)
	}
	defer rows.Close()

	out := roles.Set{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		role, err := roles.Parse(name)
		if err != nil {
			return nil, err
		}
		out.Add(role)
	}

	return out, rows.Err()
}

// insertPermission writes one (operation, role) row. The store assumes only
// single-row atomicity, so the setup builder issues these one at a time.
func (s *Store) insertPermission(ctx context.Context, operationID string, role roles.Role) error {
	query := `
		INSERT INTO permissions (operation_id, role_name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (operation_id, role_name) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, operationID, string(role), time.Now()); err != nil {
		return fmt.Errorf("failed to insert permission: %w", err)
	}
	return nil
}

// deletePermission removes one (operation, role) row.
func (s *Store) deletePermission(ctx context.Context, operationID string, role roles.Role) error {
	query := `DELETE FROM permissions WHERE operation_id = $1 AND role_name = $2`
	if _, err := s.db.ExecContext(ctx, query, operationID, string(role)); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return nil
}
