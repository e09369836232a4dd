package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/roles"
)

// MembershipStore handles organization membership persistence.
type MembershipStore struct {
	db *sql.DB
}

// NewMembershipStore creates a new membership store.
func NewMembershipStore(db *sql.DB) *MembershipStore {
	return &MembershipStore{db: db}
}

const membershipColumns = `id, organization_id, member_id, role_name, created_at, updated_at`

// Create inserts a membership. Inserting a membership that already exists
// is a no-op, which keeps invitation acceptance and join-request approval
// re-drivable after a partial failure.
func (s *MembershipStore) Create(ctx context.Context, organizationID, memberID string, role roles.Role) (*Membership, error) {
	if !roles.Valid(role) {
		return nil, fmt.Errorf("failed to create membership: unknown role %q", role)
	}

	query := `
		INSERT INTO organization_memberships (id, organization_id, member_id, role_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (organization_id, member_id, role_name) DO NOTHING
	`

	m := &Membership{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		MemberID:       memberID,
		Role:           role,
	}

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, m.ID, organizationID, memberID, string(role), now); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return m, nil
}

// ListForMember returns every membership a persona holds, across all
// organizations. The effective-role resolver iterates these.
func (s *MembershipStore) ListForMember(ctx context.Context, memberID string) ([]Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM organization_memberships
		WHERE member_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// ListForOrganization returns every membership of an organization.
func (s *MembershipStore) ListForOrganization(ctx context.Context, organizationID string) ([]Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM organization_memberships
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// IsMember reports whether the persona holds any membership in the
// organization.
func (s *MembershipStore) IsMember(ctx context.Context, organizationID, memberID string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM organization_memberships
		WHERE organization_id = $1 AND member_id = $2
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, organizationID, memberID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// DeleteForMember removes every membership the persona holds in the
// organization.
func (s *MembershipStore) DeleteForMember(ctx context.Context, organizationID, memberID string) error {
	query := `
		DELETE FROM organization_memberships
		WHERE organization_id = $1 AND member_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, organizationID, memberID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

// DeleteAllForOrganization removes every membership of the organization.
func (s *MembershipStore) DeleteAllForOrganization(ctx context.Context, organizationID string) error {
	query := `DELETE FROM organization_memberships WHERE organization_id = $1`
	if _, err := s.db.ExecContext(ctx, query, organizationID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	return nil
}

func scanMemberships(rows *sql.Rows) ([]Membership, error) {
	var out []Membership
	for rows.Next() {
		var m Membership
		var name string
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.MemberID, &name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		role, err := roles.Parse(name)
		if err != nil {
			return nil, err
		}
		m.Role = role
		out = append(out, m)
	}
	return out, rows.Err()
}
