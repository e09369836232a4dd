package resource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/roles"
)

// GrantStore handles direct persona/resource/role grants.
type GrantStore struct {
	db *sql.DB
}

// NewGrantStore creates a new grant store.
func NewGrantStore(db *sql.DB) *GrantStore {
	return &GrantStore{db: db}
}

// Grant adds a role for a persona on a resource. Granting an already-held
// role is a no-op.
func (s *GrantStore) Grant(ctx context.Context, personaID, resourceID string, role roles.Role) (*Grant, error) {
	if !roles.Valid(role) {
		return nil, fmt.Errorf("failed to grant: unknown role %q", role)
	}

	query := `
		INSERT INTO persona_resource_roles (id, persona_id, resource_id, role_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (persona_id, resource_id, role_name) DO NOTHING
	`

	grant := &Grant{
		ID:         uuid.NewString(),
		PersonaID:  personaID,
		ResourceID: resourceID,
		Role:       role,
	}

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, grant.ID, personaID, resourceID, string(role), now); err != nil {
		return nil, fmt.Errorf("failed to grant role: %w", err)
	}

	grant.CreatedAt = now
	grant.UpdatedAt = now
	return grant, nil
}

// Revoke removes one role for a persona on a resource.
func (s *GrantStore) Revoke(ctx context.Context, personaID, resourceID string, role roles.Role) error {
	query := `
		DELETE FROM persona_resource_roles
		WHERE persona_id = $1 AND resource_id = $2 AND role_name = $3
	`
	if _, err := s.db.ExecContext(ctx, query, personaID, resourceID, string(role)); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// RolesFor returns the roles a persona holds directly on a resource.
func (s *GrantStore) RolesFor(ctx context.Context, personaID, resourceID string) (roles.Set, error) {
	query := `
		SELECT role_name
		FROM persona_resource_roles
		WHERE persona_id = $1 AND resource_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, personaID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grants: %w", err)
	}
	defer rows.Close()

	out := roles.Set{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		role, err := roles.Parse(name)
		if err != nil {
			return nil, err
		}
		out.Add(role)
	}

	return out, rows.Err()
}

// ListForResource returns all grants on a resource.
func (s *GrantStore) ListForResource(ctx context.Context, resourceID string) ([]Grant, error) {
	query := `
		SELECT id, persona_id, resource_id, role_name, created_at, updated_at
		FROM persona_resource_roles
		WHERE resource_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows)
}

// ListForPersona returns all grants a persona holds, on any resource.
func (s *GrantStore) ListForPersona(ctx context.Context, personaID string) ([]Grant, error) {
	query := `
		SELECT id, persona_id, resource_id, role_name, created_at, updated_at
		FROM persona_resource_roles
		WHERE persona_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows)
}

func scanGrants(rows *sql.Rows) ([]Grant, error) {
	var out []Grant
	for rows.Next() {
		var grant Grant
		var name string
		if err := rows.Scan(&grant.ID, &grant.PersonaID, &grant.ResourceID, &name, &grant.CreatedAt, &grant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		role, err := roles.Parse(name)
		if err != nil {
			return nil, err
		}
		grant.Role = role
		out = append(out, grant)
	}
	return out, rows.Err()
}
