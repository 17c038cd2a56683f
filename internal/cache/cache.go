// Package cache keeps short-lived copies of hot read models in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tayaan/arena/internal/domain"
)

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.Connect: %w", err)
	}
	return rdb, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Pool snapshots
// ──────────────────────────────────────────────────────────────────────────────

// PoolCache caches live pool snapshots for the odds endpoints. Frozen
// settlement snapshots are never read from here.
type PoolCache struct {
	r   *redis.Client
	ttl time.Duration
}

// NewPoolCache returns nil when r is nil; a nil *PoolCache always misses.
func NewPoolCache(r *redis.Client, ttl time.Duration) *PoolCache {
	if r == nil {
		return nil
	}
	return &PoolCache{r: r, ttl: ttl}
}

func poolKey(eventID uuid.UUID) string { return "pool:live:" + eventID.String() }

// Get returns the cached snapshot, or ok=false on a miss.
func (c *PoolCache) Get(ctx context.Context, eventID uuid.UUID) (*domain.PoolSnapshot, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	b, err := c.r.Get(ctx, poolKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache.Pool.Get: %w", err)
	}
	var snap domain.PoolSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, false, fmt.Errorf("cache.Pool.Get: decode: %w", err)
	}
	return &snap, true, nil
}

// Set stores snap under its event id.
func (c *PoolCache) Set(ctx context.Context, snap *domain.PoolSnapshot) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache.Pool.Set: %w", err)
	}
	return c.r.Set(ctx, poolKey(snap.EventID), b, c.ttl).Err()
}

// Invalidate drops the cached snapshot after a stake changes the pool.
func (c *PoolCache) Invalidate(ctx context.Context, eventID uuid.UUID) error {
	if c == nil {
		return nil
	}
	return c.r.Del(ctx, poolKey(eventID)).Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────────────────────────────────

// SettingsCache caches app_settings values by key.
type SettingsCache struct {
	r   *redis.Client
	ttl time.Duration
}

// NewSettingsCache returns nil when r is nil; a nil *SettingsCache always misses.
func NewSettingsCache(r *redis.Client, ttl time.Duration) *SettingsCache {
	if r == nil {
		return nil
	}
	return &SettingsCache{r: r, ttl: ttl}
}

func settingKey(key string) string { return "settings:" + key }

// Get returns the cached value, or ok=false on a miss.
func (c *SettingsCache) Get(ctx context.Context, key string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	v, err := c.r.Get(ctx, settingKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache.Settings.Get: %w", err)
	}
	return v, true, nil
}

// Set stores value for key.
func (c *SettingsCache) Set(ctx context.Context, key, value string) error {
	if c == nil {
		return nil
	}
	return c.r.Set(ctx, settingKey(key), value, c.ttl).Err()
}

// Invalidate drops key so the next read hits the database.
func (c *SettingsCache) Invalidate(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.r.Del(ctx, settingKey(key)).Err()
}
