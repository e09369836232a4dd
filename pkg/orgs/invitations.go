package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/roles"
)

// InvitationStore handles invitation persistence.
type InvitationStore struct {
	db *sql.DB
}

// NewInvitationStore creates a new invitation store.
func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

const invitationColumns = `id, token, email, invited_by, organization_id, role_name, dispatched_at, accepted_at, accepted_by, created_at, updated_at`

// newToken returns an unguessable capability token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create inserts a new invitation with a fresh token.
func (s *InvitationStore) Create(ctx context.Context, email, invitedBy, organizationID string, role roles.Role) (*Invitation, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	inv := &Invitation{
		ID:             uuid.NewString(),
		Token:          token,
		Email:          email,
		InvitedBy:      invitedBy,
		OrganizationID: organizationID,
		Role:           role,
	}

	query := `
		INSERT INTO invitations (id, token, email, invited_by, organization_id, role_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query,
		inv.ID, inv.Token, inv.Email, inv.InvitedBy, inv.OrganizationID, string(inv.Role), now); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	inv.CreatedAt = now
	inv.UpdatedAt = now
	return inv, nil
}

// GetByToken retrieves an invitation by its capability token.
func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, token))
}

// Get retrieves an invitation by ID.
func (s *InvitationStore) Get(ctx context.Context, id string) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// ListPendingForOrganization returns the organization's not-yet-accepted
// invitations.
func (s *InvitationStore) ListPendingForOrganization(ctx context.Context, organizationID string) ([]Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE organization_id = $1 AND accepted_at IS NULL
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, organizationID)
}

// ListForOrganization returns all of the organization's invitations.
func (s *InvitationStore) ListForOrganization(ctx context.Context, organizationID string) ([]Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, organizationID)
}

// ListUndispatched returns invitations never successfully handed to the
// notifier. The re-dispatch sweep drains this list.
func (s *InvitationStore) ListUndispatched(ctx context.Context, limit int) ([]Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE dispatched_at IS NULL AND accepted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	return s.list(ctx, query, limit)
}

// MarkDispatched stamps dispatched_at. Dispatching is idempotent: the stamp
// records the most recent send, and re-sending an already-dispatched
// invitation is allowed.
func (s *InvitationStore) MarkDispatched(ctx context.Context, id string) error {
	query := `UPDATE invitations SET dispatched_at = $1, updated_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark invitation dispatched: %w", err)
	}
	return nil
}

// MarkAccepted stamps the terminal acceptance. The caller creates the
// membership first so a crash between the two steps leaves a re-drivable
// pending invitation, never an accepted one without a membership.
func (s *InvitationStore) MarkAccepted(ctx context.Context, id, acceptedBy string) error {
	query := `
		UPDATE invitations
		SET accepted_at = $1, accepted_by = $2, updated_at = $1
		WHERE id = $3 AND accepted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, time.Now(), acceptedBy, id)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errs.Conflict("invitation %s already accepted", id)
	}

	return nil
}

// DeleteForOrganization removes all of the organization's invitations.
func (s *InvitationStore) DeleteForOrganization(ctx context.Context, organizationID string) error {
	query := `DELETE FROM invitations WHERE organization_id = $1`
	if _, err := s.db.ExecContext(ctx, query, organizationID); err != nil {
		return fmt.Errorf("failed to delete invitations: %w", err)
	}
	return nil
}

func (s *InvitationStore) list(ctx context.Context, query string, args ...interface{}) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *InvitationStore) scanOne(row *sql.Row) (*Invitation, error) {
	inv, err := scanInvitation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("invitation not found")
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func scanInvitation(scan func(...interface{}) error) (*Invitation, error) {
	var inv Invitation
	var name string
	var dispatchedAt, acceptedAt sql.NullTime
	var acceptedBy sql.NullString

	err := scan(&inv.ID, &inv.Token, &inv.Email, &inv.InvitedBy, &inv.OrganizationID, &name,
		&dispatchedAt, &acceptedAt, &acceptedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}

	role, err := roles.Parse(name)
	if err != nil {
		return nil, err
	}
	inv.Role = role

	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		inv.DispatchedAt = &t
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	inv.AcceptedBy = acceptedBy.String

	return &inv, nil
}
