package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tayaan/arena/internal/domain"
)

// UserRepository handles all database operations for profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new profile row.
func (r *UserRepository) Create(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles
			(id, username, password_hash, role, balance, referrer_id, is_bot, is_banned, created_at, updated_at)
		VALUES
			(:id, :username, :password_hash, :role, :balance, :referrer_id, :is_bot, :is_banned, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if isPgUniqueViolation(err, "profiles_username_key") {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("user_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a profile by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.GetContext(ctx, &p, `SELECT * FROM profiles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &p, nil
}

// GetByUsername fetches a profile by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.GetContext(ctx, &p, `SELECT * FROM profiles WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByUsername: %w", err)
	}
	return &p, nil
}

// List returns a page of profiles and the total count.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*domain.Profile, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM profiles`); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List count: %w", err)
	}
	var profiles []*domain.Profile
	if err := r.db.SelectContext(ctx, &profiles,
		`SELECT * FROM profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List: %w", err)
	}
	return profiles, total, nil
}

// ListBots returns every unbanned bot profile.
func (r *UserRepository) ListBots(ctx context.Context) ([]*domain.Profile, error) {
	var bots []*domain.Profile
	if err := r.db.SelectContext(ctx, &bots,
		`SELECT * FROM profiles WHERE is_bot AND NOT is_banned ORDER BY username`); err != nil {
		return nil, fmt.Errorf("user_repo.ListBots: %w", err)
	}
	return bots, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Downline
// ──────────────────────────────────────────────────────────────────────────────

const downlineCTE = `
	WITH RECURSIVE downline AS (
		SELECT id FROM profiles WHERE referrer_id = $1
		UNION
		SELECT p.id FROM profiles p JOIN downline d ON p.referrer_id = d.id
	)`

// IsInDownline reports whether userID sits anywhere below ancestorID in the
// referral tree.
func (r *UserRepository) IsInDownline(ctx context.Context, ancestorID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok,
		downlineCTE+` SELECT EXISTS (SELECT 1 FROM downline WHERE id = $2)`,
		ancestorID, userID)
	if err != nil {
		return false, fmt.Errorf("user_repo.IsInDownline: %w", err)
	}
	return ok, nil
}

// ListDownline returns a page of every profile below ancestorID.
func (r *UserRepository) ListDownline(ctx context.Context, ancestorID uuid.UUID, limit, offset int) ([]*domain.Profile, error) {
	var profiles []*domain.Profile
	err := r.db.SelectContext(ctx, &profiles,
		downlineCTE+` SELECT p.* FROM profiles p JOIN downline d ON d.id = p.id
		ORDER BY p.created_at DESC LIMIT $2 OFFSET $3`,
		ancestorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user_repo.ListDownline: %w", err)
	}
	return profiles, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin updates
// ──────────────────────────────────────────────────────────────────────────────

// UpdateRole changes the role of a profile.
func (r *UserRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role domain.UserRole) error {
	return r.exec(ctx, "user_repo.UpdateRole",
		`UPDATE profiles SET role = $1, updated_at = now() WHERE id = $2`, string(role), userID)
}

// SetBanned bans or unbans a profile.
func (r *UserRepository) SetBanned(ctx context.Context, userID uuid.UUID, banned bool) error {
	return r.exec(ctx, "user_repo.SetBanned",
		`UPDATE profiles SET is_banned = $1, updated_at = now() WHERE id = $2`, banned, userID)
}

// UpdatePassword replaces the password hash of a profile.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error {
	return r.exec(ctx, "user_repo.UpdatePassword",
		`UPDATE profiles SET password_hash = $1, updated_at = now() WHERE id = $2`, hash, userID)
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// isPgUniqueViolation checks whether err is a PostgreSQL unique constraint
// violation on the given constraint.
func isPgUniqueViolation(err error, constraintName string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraintName
}
