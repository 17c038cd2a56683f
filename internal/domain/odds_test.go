package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── Pari-mutuel odds ──────────────────────────────────────────────────────────

func TestCalculateOdds(t *testing.T) {
	// netPool = 1000 × 0.96 = 960
	// meron   = 960 / 600 = 1.6
	// wala    = 960 / 400 = 2.4
	meron, err := domain.CalculateOdds(d("600"), d("1000"), d("0.04"))
	require.NoError(t, err)
	assert.True(t, meron.Equal(d("1.6")), "meron odds = %s", meron)

	wala, err := domain.CalculateOdds(d("400"), d("1000"), d("0.04"))
	require.NoError(t, err)
	assert.True(t, wala.Equal(d("2.4")), "wala odds = %s", wala)
}

func TestCalculateOdds_FallbackWhenSideEmpty(t *testing.T) {
	for _, rate := range []string{"0", "0.04", "0.1", "0.5", "0.99"} {
		for _, pool := range []string{"0", "1", "1000", "123456.78"} {
			got, err := domain.CalculateOdds(decimal.Zero, d(pool), d(rate))
			require.NoError(t, err)
			want := d("2").Mul(decimal.NewFromInt(1).Sub(d(rate)))
			if !got.Equal(want) {
				t.Errorf("rate=%s pool=%s: fallback = %s, want %s", rate, pool, got, want)
			}
		}
	}
}

func TestCalculateOdds_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name              string
		side, total, rate string
	}{
		{"negative side", "-1", "100", "0.04"},
		{"negative total", "0", "-100", "0.04"},
		{"side exceeds total", "200", "100", "0.04"},
		{"negative rate", "50", "100", "-0.01"},
		{"rate of one", "50", "100", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.CalculateOdds(d(tc.side), d(tc.total), d(tc.rate))
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestPayoutFor_RoundsDown(t *testing.T) {
	// 100 × 960/700 = 137.142857... → 137.14
	odds, err := domain.CalculateOdds(d("700"), d("1000"), d("0.04"))
	require.NoError(t, err)
	assert.Equal(t, "137.14", domain.PayoutFor(d("100"), odds).StringFixed(2))
}

// ── Display formats ───────────────────────────────────────────────────────────

func TestOddsFormats(t *testing.T) {
	assert.InDelta(t, 0.6, domain.ToHongKong(1.6), 1e-12)
	assert.Equal(t, 0.0, domain.ToHongKong(0.9), "HK is floored at zero")

	assert.InDelta(t, -1/0.6, domain.ToMalay(0.6), 1e-12)
	assert.Equal(t, 1.4, domain.ToMalay(1.4))
	assert.Equal(t, 0.0, domain.ToMalay(0), "Malay singularity maps to 0")
	assert.Equal(t, 0.0, domain.FromMalay(0))
}

func TestOddsFormats_RoundTrip(t *testing.T) {
	for _, dec := range []float64{1.01, 1.25, 1.6, 1.92, 2, 2.4, 3.75, 10, 101.5} {
		hk := domain.ToHongKong(dec)
		malay := domain.ToMalay(hk)
		back := domain.FromHongKong(domain.FromMalay(malay))
		if math.Abs(back-dec) > 1e-9 {
			t.Errorf("round trip %v -> hk %v -> malay %v -> %v", dec, hk, malay, back)
		}
	}
}

func TestNewOdds_PercentIsDisplayOnly(t *testing.T) {
	o := domain.NewOdds(d("1.6"))
	assert.True(t, o.Decimal.Equal(d("1.6")))
	assert.True(t, o.Percent.Equal(d("160")))
	assert.InDelta(t, 0.6, o.HongKong, 1e-9)
	assert.InDelta(t, -1/0.6, o.Malay, 1e-9)
}
