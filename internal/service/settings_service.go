package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tayaan/arena/internal/cache"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/repository"
)

// SettingsService serves app_settings. Reads go through the redis cache and
// concurrent misses for one key share a single database query, so the odds
// display and the freeze at close see the same plasada rate.
type SettingsService struct {
	repo  *repository.SettingsRepository
	cache *cache.SettingsCache
	cfg   *config.Config
	deps  Deps
	group singleflight.Group
}

// NewSettingsService creates a SettingsService. c may be nil.
func NewSettingsService(repo *repository.SettingsRepository, c *cache.SettingsCache, cfg *config.Config, deps Deps) *SettingsService {
	return &SettingsService{repo: repo, cache: c, cfg: cfg, deps: deps}
}

// Get returns the raw value of key, or "" with ok=false when it is unset.
func (s *SettingsService) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := s.cache.Get(ctx, key); err != nil {
		s.deps.logger().Warn("settings cache get", zap.String("key", key), zap.Error(err))
	} else if ok {
		return v, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		val, err := s.repo.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if err := s.cache.Set(ctx, key, val); err != nil {
			s.deps.logger().Warn("settings cache set", zap.String("key", key), zap.Error(err))
		}
		return val, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSettingNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("settings_service.Get: %w", err)
	}
	return v.(string), true, nil
}

// PlasadaRate returns the live commission rate, falling back to PLASADA_RATE.
func (s *SettingsService) PlasadaRate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := s.decimal(ctx, domain.SettingPlasadaRate, s.cfg.Betting.PlasadaRate)
	if err != nil {
		return decimal.Zero, err
	}
	if err := domain.ValidateRate(rate); err != nil {
		return decimal.Zero, fmt.Errorf("settings_service.PlasadaRate: stored value: %w", err)
	}
	return rate, nil
}

// DrawMultiplier returns the fixed draw payout, falling back to DRAW_MULTIPLIER.
func (s *SettingsService) DrawMultiplier(ctx context.Context) (decimal.Decimal, error) {
	return s.decimal(ctx, domain.SettingDrawMultiplier, s.cfg.Betting.DrawMultiplier)
}

// PayoutBasis returns the configured payout policy.
func (s *SettingsService) PayoutBasis() domain.PayoutBasis {
	b := domain.PayoutBasis(s.cfg.Betting.PayoutBasis)
	if !b.IsValid() {
		return domain.BasisAllSources
	}
	return b
}

func (s *SettingsService) decimal(ctx context.Context, key string, fallback float64) (decimal.Decimal, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.NewFromFloat(fallback), nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settings_service: %s=%q: %w", key, v, err)
	}
	return d, nil
}

// List returns every stored setting.
func (s *SettingsService) List(ctx context.Context) ([]domain.Setting, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings_service.List: %w", err)
	}
	return out, nil
}

// Set validates and stores a setting, then drops the cached copy. A new
// plasada rate shows in live odds on the next read and applies to events
// closed after the change; frozen snapshots keep theirs.
func (s *SettingsService) Set(ctx context.Context, key, value string, by uuid.UUID) error {
	if err := domain.ValidateSetting(key, value); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, key, value, by); err != nil {
		return fmt.Errorf("settings_service.Set: %w", err)
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.deps.logger().Warn("settings cache invalidate", zap.String("key", key), zap.Error(err))
	}
	s.deps.logger().Info("setting changed",
		zap.String("key", key), zap.String("value", value), zap.Stringer("by", by))
	return nil
}
