package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/persona"
)

// Store handles organization row persistence. Lifecycle orchestration
// (backing resource, grants, cascades) lives in Service.
type Store struct {
	db *sql.DB
}

// NewStore creates a new organization store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const orgColumns = `id, owner_id, name, description, visibility, created_at, updated_at`

// Create inserts an organization row. Name uniqueness is checked first so a
// duplicate surfaces as a conflict instead of a driver error.
func (s *Store) Create(ctx context.Context, org *persona.Organization) error {
	if org.Name == "" {
		return errs.InvalidArgument("organization name is required")
	}
	if _, err := s.GetByName(ctx, org.Name); err == nil {
		return errs.Conflict("organization name already taken: %s", org.Name)
	} else if !errs.IsNotFound(err) {
		return err
	}

	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	query := `
		INSERT INTO organizations (id, owner_id, name, description, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		org.ID, org.OwnerID, org.Name, org.Description, string(org.Visibility), now)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// Get retrieves an organization by ID.
func (s *Store) Get(ctx context.Context, id string) (*persona.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id), id)
}

// GetByName retrieves an organization by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*persona.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE name = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, name), name)
}

// UpdateOwner persists a new owner for the organization.
func (s *Store) UpdateOwner(ctx context.Context, id, ownerID string) error {
	query := `UPDATE organizations SET owner_id = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, ownerID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update organization owner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errs.NotFound("organization not found: %s", id)
	}

	return nil
}

// Delete removes the organization row only. Service.Delete runs the cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM organizations WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// ListOwnedBy returns the organizations owned by a persona. An organization
// owned by another organization is a sub-organization.
func (s *Store) ListOwnedBy(ctx context.Context, ownerID string) ([]persona.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE owner_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []persona.Organization
	for rows.Next() {
		var org persona.Organization
		var visibility string
		if err := rows.Scan(&org.ID, &org.OwnerID, &org.Name, &org.Description, &visibility, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Visibility = persona.Visibility(visibility)
		out = append(out, org)
	}

	return out, rows.Err()
}

func (s *Store) scanOne(row *sql.Row, key string) (*persona.Organization, error) {
	var org persona.Organization
	var visibility string
	err := row.Scan(&org.ID, &org.OwnerID, &org.Name, &org.Description, &visibility, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("organization not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org.Visibility = persona.Visibility(visibility)
	return &org, nil
}
