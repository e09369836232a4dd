package roles

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/errs"
)

// Record is a persisted role row. The role set is fixed, but lookups still
// go through the store so descriptions stay consistent with the database.
type Record struct {
	Name        Role      `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store handles role persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetByName retrieves a role row by name.
func (s *Store) GetByName(ctx context.Context, name string) (*Record, error) {
	role, err := Parse(name)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT name, description, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	var rec Record
	err = s.db.QueryRowContext(ctx, query, string(role)).Scan(
		&rec.Name,
		&rec.Description,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("role not seeded: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &rec, nil
}

// List retrieves all role rows.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT name, description, created_at, updated_at
		FROM roles
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.Description, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// Seed inserts the seven fixed roles if they are missing. It is idempotent
// and safe to run on every process start.
func (s *Store) Seed(ctx context.Context) error {
	query := `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO NOTHING
	`

	now := time.Now()
	for _, role := range All() {
		if _, err := s.db.ExecContext(ctx, query, string(role), Descriptions[role], now); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role, err)
		}
	}

	return nil
}
