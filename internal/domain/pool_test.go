package domain_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/domain"
)

// ── Additivity & isolation ────────────────────────────────────────────────────

func TestPoolSnapshot_AdditiveAtEveryStep(t *testing.T) {
	p := domain.NewPoolSnapshot(uuid.New(), domain.SabongSelections...)
	steps := []struct {
		sel    domain.Selection
		src    domain.StakeSource
		amount string
	}{
		{domain.SelectionMeron, domain.SourceUser, "100"},
		{domain.SelectionWala, domain.SourceBot, "250.50"},
		{domain.SelectionMeron, domain.SourceInjection, "50"},
		{domain.SelectionDraw, domain.SourceUser, "20"},
		{domain.SelectionMeron, domain.SourceBot, "75.25"},
		{domain.SelectionWala, domain.SourceUser, "10"},
	}
	for i, s := range steps {
		require.NoError(t, p.Record(s.sel, s.src, d(s.amount)))
		if err := p.Verify(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	assert.True(t, p.GrandTotal().Equal(d("505.75")), "grand total = %s", p.GrandTotal())
}

func TestPoolSnapshot_InjectionIsolation(t *testing.T) {
	p := domain.NewPoolSnapshot(uuid.New(), domain.SabongSelections...)
	require.NoError(t, p.Record(domain.SelectionMeron, domain.SourceUser, d("100")))
	before := p.Totals(domain.SelectionMeron)

	require.NoError(t, p.Record(domain.SelectionMeron, domain.SourceInjection, d("50")))
	after := p.Totals(domain.SelectionMeron)

	assert.True(t, after.Injection.Sub(before.Injection).Equal(d("50")))
	assert.True(t, after.User.Equal(before.User), "user bucket must not move")
	assert.True(t, after.Total.Equal(d("150")))
}

func TestPoolSnapshot_VerifyDetectsMismatch(t *testing.T) {
	id := uuid.New()
	buckets := []domain.PoolBucket{
		{EventID: id, Selection: domain.SelectionMeron, Source: domain.SourceUser, Amount: d("100")},
		{EventID: id, Selection: domain.SelectionMeron, Source: domain.SourceBot, Amount: d("40")},
	}
	totals := []domain.PoolTotal{
		{EventID: id, Selection: domain.SelectionMeron, Total: d("150")},
	}
	p := domain.BuildSnapshot(id, buckets, totals, domain.SabongSelections...)
	err := p.Verify()
	if !errors.Is(err, domain.ErrLedgerInconsistency) {
		t.Fatalf("expected ErrLedgerInconsistency, got %v", err)
	}
	assert.Contains(t, err.Error(), "meron")
}

func TestPoolSnapshot_Reconcile(t *testing.T) {
	id := uuid.New()
	p := domain.NewPoolSnapshot(id, domain.SabongSelections...)
	require.NoError(t, p.Record(domain.SelectionMeron, domain.SourceUser, d("100")))
	require.NoError(t, p.Record(domain.SelectionWala, domain.SourceInjection, d("60")))

	bets := []domain.Bet{
		{ID: uuid.New(), Selection: domain.SelectionMeron, Source: domain.SourceUser, Amount: d("100"), Status: domain.BetStatusPending},
		{ID: uuid.New(), Selection: domain.SelectionWala, Source: domain.SourceInjection, Amount: d("60"), Status: domain.BetStatusPending},
		{ID: uuid.New(), Selection: domain.SelectionWala, Source: domain.SourceUser, Amount: d("999"), Status: domain.BetStatusCancelled},
	}
	require.NoError(t, p.Reconcile(domain.PoolFromBets(id, bets)))

	bets[1].Source = domain.SourceBot
	err := p.Reconcile(domain.PoolFromBets(id, bets))
	assert.ErrorIs(t, err, domain.ErrLedgerInconsistency)
}

func TestPoolSnapshot_UserOnlyBasis(t *testing.T) {
	p := domain.NewPoolSnapshot(uuid.New(), domain.SabongSelections...)
	p.Rate = d("0.04")
	require.NoError(t, p.Record(domain.SelectionMeron, domain.SourceUser, d("600")))
	require.NoError(t, p.Record(domain.SelectionWala, domain.SourceUser, d("400")))
	require.NoError(t, p.Record(domain.SelectionWala, domain.SourceBot, d("1000")))

	all, err := p.OddsFor(domain.SelectionMeron)
	require.NoError(t, err)
	assert.True(t, all.Equal(d("3.2")), "all_sources meron = %s", all) // 2000×0.96/600

	p.Basis = domain.BasisUserOnly
	user, err := p.OddsFor(domain.SelectionMeron)
	require.NoError(t, err)
	assert.True(t, user.Equal(d("1.6")), "user_only meron = %s", user)
}

func TestPoolSnapshot_DrawUsesMultiplier(t *testing.T) {
	p := domain.NewPoolSnapshot(uuid.New(), domain.SabongSelections...)
	p.DrawMultiplier = d("8")
	odds, err := p.OddsFor(domain.SelectionDraw)
	require.NoError(t, err)
	assert.True(t, odds.Equal(d("8")))
}

func TestStakeSource_IsValid(t *testing.T) {
	if domain.StakeSource("house").IsValid() {
		t.Error("house should not be a valid source")
	}
	p := domain.NewPoolSnapshot(uuid.New())
	assert.ErrorIs(t, p.Record(domain.SelectionMeron, "house", d("1")), domain.ErrValidation)
}
