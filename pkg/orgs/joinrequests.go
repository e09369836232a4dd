package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
)

// JoinRequestStore handles join-request persistence.
type JoinRequestStore struct {
	db *sql.DB
}

// NewJoinRequestStore creates a new join-request store.
func NewJoinRequestStore(db *sql.DB) *JoinRequestStore {
	return &JoinRequestStore{db: db}
}

const joinRequestColumns = `id, organization_id, persona_id, status, created_at, updated_at`

// Create inserts a new pending join request.
func (s *JoinRequestStore) Create(ctx context.Context, organizationID, personaID string) (*JoinRequest, error) {
	req := &JoinRequest{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		PersonaID:      personaID,
		Status:         StatusPending,
	}

	query := `
		INSERT INTO organization_join_requests (id, organization_id, persona_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query,
		req.ID, req.OrganizationID, req.PersonaID, string(req.Status), now); err != nil {
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	req.CreatedAt = now
	req.UpdatedAt = now
	return req, nil
}

// Get retrieves a join request by ID.
func (s *JoinRequestStore) Get(ctx context.Context, id string) (*JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM organization_join_requests WHERE id = $1`

	var req JoinRequest
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.OrganizationID, &req.PersonaID, &status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("join request not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}

	req.Status = JoinRequestStatus(status)
	return &req, nil
}

// ListForOrganization returns the organization's join requests.
func (s *JoinRequestStore) ListForOrganization(ctx context.Context, organizationID string) ([]JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM organization_join_requests
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, organizationID)
}

// ListForPersona returns the join requests a persona has filed.
func (s *JoinRequestStore) ListForPersona(ctx context.Context, personaID string) ([]JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM organization_join_requests
		WHERE persona_id = $1
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, personaID)
}

// UpdateStatus flips the request's status. The guard on the current status
// makes the transition single-shot under concurrent deciders.
func (s *JoinRequestStore) UpdateStatus(ctx context.Context, id string, from, to JoinRequestStatus) error {
	query := `
		UPDATE organization_join_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, string(to), time.Now(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update join request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errs.Conflict("join request %s is not %s", id, from)
	}

	return nil
}

// DeleteForOrganization removes all of the organization's join requests.
func (s *JoinRequestStore) DeleteForOrganization(ctx context.Context, organizationID string) error {
	query := `DELETE FROM organization_join_requests WHERE organization_id = $1`
	if _, err := s.db.ExecContext(ctx, query, organizationID); err != nil {
		return fmt.Errorf("failed to delete join requests: %w", err)
	}
	return nil
}

func (s *JoinRequestStore) list(ctx context.Context, query string, args ...interface{}) ([]JoinRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var out []JoinRequest
	for rows.Next() {
		var req JoinRequest
		var status string
		if err := rows.Scan(&req.ID, &req.OrganizationID, &req.PersonaID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		req.Status = JoinRequestStatus(status)
		out = append(out, req)
	}
	return out, rows.Err()
}
