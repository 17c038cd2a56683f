package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/domain"
)

func TestNilCachesMiss(t *testing.T) {
	ctx := context.Background()
	var pc *PoolCache
	snap, ok, err := pc.Get(ctx, uuid.New())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
	assert.NoError(t, pc.Set(ctx, domain.NewPoolSnapshot(uuid.New())))

	sc := NewSettingsCache(nil, time.Second)
	_, ok, err = sc.Get(ctx, domain.SettingPlasadaRate)
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestPoolCache_RoundTrip needs a live redis; set TEST_REDIS_ADDR to run it.
func TestPoolCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	defer r.Close()

	pc := NewPoolCache(r, time.Minute)
	snap := domain.NewPoolSnapshot(uuid.New(), domain.SabongSelections...)
	require.NoError(t, snap.Record(domain.SelectionMeron, domain.SourceUser, decimal.NewFromInt(100)))
	require.NoError(t, pc.Set(ctx, snap))

	got, ok, err := pc.Get(ctx, snap.EventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Totals(domain.SelectionMeron).Total.Equal(decimal.NewFromInt(100)))

	require.NoError(t, pc.Invalidate(ctx, snap.EventID))
	_, ok, _ = pc.Get(ctx, snap.EventID)
	assert.False(t, ok)
}
