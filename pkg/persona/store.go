package persona

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
)

// Store resolves personas across both variants and owns the users table.
// Organization rows are written by the organization service; this store only
// reads them for persona resolution.
type Store struct {
	db *sql.DB
}

// NewStore creates a new persona store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get resolves a persona ID against the users table first, then the
// organizations table.
func (s *Store) Get(ctx context.Context, id string) (Persona, error) {
	if id == "" {
		return nil, errs.InvalidArgument("persona ID is empty")
	}

	user, err := s.GetUser(ctx, id)
	if err == nil {
		return user, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	org, err := s.getOrganization(ctx, id)
	if err == nil {
		return org, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	return nil, errs.NotFound("persona not found: %s", id)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("user not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}
	return &user, nil
}

// CreateUser inserts a user row. The ID comes from the identity provider
// when the user is created via the principal resolver; a fresh UUID is
// assigned otherwise.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Name, nullable(user.Email), now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// UpdateUser persists name/email changes.
func (s *Store) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, updated_at = $3
		WHERE id = $4
	`

	user.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query, user.Name, nullable(user.Email), user.UpdatedAt, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errs.NotFound("user not found: %s", user.ID)
	}

	return nil
}

// GetOrCreateUser returns the user with the given ID, creating it on first
// sight. The identity provider has already authenticated the principal, so a
// missing row just means we have not seen this user before.
func (s *Store) GetOrCreateUser(ctx context.Context, id, name, email string) (*User, error) {
	user, err := s.GetUser(ctx, id)
	if err == nil {
		return user, nil
	}
	if !errs.IsNotFound(err) {
		return nil, err
	}

	user = &User{ID: id, Name: name, Email: email}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) getOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, owner_id, name, description, visibility, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org Organization
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.OwnerID,
		&org.Name,
		&org.Description,
		&org.Visibility,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("organization not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
