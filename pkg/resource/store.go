package resource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/pkg/errs"
)

// Store handles resource persistence and owner-chain resolution.
type Store struct {
	db *sql.DB
}

// NewStore creates a new resource store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a resource. A resource without a direct owner and without a
// parent would have no resolvable owner, so that shape is rejected up front.
func (s *Store) Create(ctx context.Context, res *Resource) error {
	if res.PersonaID == "" && res.ParentID == "" {
		return errs.InvalidArgument("resource needs a persona or a parent")
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	query := `
		INSERT INTO resources (id, persona_id, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, res.ID, nullable(res.PersonaID), nullable(res.ParentID), now)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	res.CreatedAt = now
	res.UpdatedAt = now
	return nil
}

// Get retrieves a resource by ID.
func (s *Store) Get(ctx context.Context, id string) (*Resource, error) {
	query := `
		SELECT id, persona_id, parent_id, created_at, updated_at
		FROM resources
		WHERE id = $1
	`

	var res Resource
	var personaID, parentID sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&personaID,
		&parentID,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("resource not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	res.PersonaID = personaID.String
	res.ParentID = parentID.String
	return &res, nil
}

// Transfer changes the direct owner of a resource.
func (s *Store) Transfer(ctx context.Context, resourceID, newPersonaID string) error {
	query := `
		UPDATE resources
		SET persona_id = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, newPersonaID, time.Now(), resourceID)
	if err != nil {
		return fmt.Errorf("failed to transfer resource: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errs.NotFound("resource not found: %s", resourceID)
	}

	return nil
}

// Delete removes a resource row.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM resources WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// ListOwnedBy returns the resources directly owned by a persona.
func (s *Store) ListOwnedBy(ctx context.Context, personaID string) ([]Resource, error) {
	query := `
		SELECT id, persona_id, parent_id, created_at, updated_at
		FROM resources
		WHERE persona_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var res Resource
		var pID, parID sql.NullString
		if err := rows.Scan(&res.ID, &pID, &parID, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		res.PersonaID = pID.String
		res.ParentID = parID.String
		out = append(out, res)
	}

	return out, rows.Err()
}

// ResolveOwner walks parent links until it finds a resource with a persona
// set and returns that persona's ID. The walk is iterative with a visited
// set: a chain that loops or ends with neither persona nor parent means the
// persisted graph is invalid, which is an internal error, not a user
// condition.
func (s *Store) ResolveOwner(ctx context.Context, resourceID string) (string, error) {
	visited := make(map[string]bool)
	id := resourceID

	for {
		if visited[id] {
			return "", errs.Internal("owner chain loops at resource %s", id)
		}
		visited[id] = true

		res, err := s.Get(ctx, id)
		if err != nil {
			if errs.IsNotFound(err) && id != resourceID {
				return "", errs.Internal("owner chain of %s references missing resource %s", resourceID, id)
			}
			return "", err
		}

		if res.PersonaID != "" {
			return res.PersonaID, nil
		}
		if res.ParentID == "" {
			return "", errs.Internal("owner chain of %s is broken at %s", resourceID, id)
		}
		id = res.ParentID
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
