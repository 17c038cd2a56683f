package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tayaan/arena/internal/domain"
)

// ErrSettingNotFound is returned when a key has no row.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository reads and writes app_settings.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored value of key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.GetContext(ctx, &v, `SELECT value FROM app_settings WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("settings_repo.Get: %w", err)
	}
	return v, nil
}

// List returns every setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]domain.Setting, error) {
	var out []domain.Setting
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM app_settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("settings_repo.List: %w", err)
	}
	return out, nil
}

// Upsert stores value under key.
func (r *SettingsRepository) Upsert(ctx context.Context, key, value string, by uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = now()`,
		key, value, by)
	if err != nil {
		return fmt.Errorf("settings_repo.Upsert: %w", err)
	}
	return nil
}
