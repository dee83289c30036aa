package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// UserRepository handles user and organization membership persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID. Returns nil without error when no such
// user exists.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, plan_tier, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	var tier string

	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&tier,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.PlanTier = types.PlanTier(tier)
	return &user, nil
}

// FindFirstOrgMember returns the earliest-joined member of an organization.
// Returns nil without error when the organization has no members.
func (r *UserRepository) FindFirstOrgMember(ctx context.Context, orgID string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.plan_tier, u.created_at, u.updated_at
		FROM users u
		JOIN org_members m ON m.user_id = u.id
		WHERE m.org_id = $1
		ORDER BY m.created_at ASC
		LIMIT 1
	`

	var user models.User
	var tier string

	err := r.db.Pool().QueryRow(ctx, query, orgID).Scan(
		&user.ID,
		&user.Email,
		&tier,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find org member: %w", err)
	}

	user.PlanTier = types.PlanTier(tier)
	return &user, nil
}
