package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/domain"
)

func kareraBet(t domain.KareraBetType, amount string, legs ...domain.KareraLeg) domain.KareraBet {
	id := uuid.New()
	for i := range legs {
		legs[i].BetID = id
		legs[i].LegNo = i + 1
		if legs[i].Result == "" {
			legs[i].Result = domain.LegPending
		}
	}
	return domain.KareraBet{
		ID:      id,
		UserID:  uuid.New(),
		BetType: t,
		Amount:  d(amount),
		Source:  domain.SourceUser,
		Status:  domain.BetStatusPending,
		Legs:    legs,
	}
}

func leg(race uuid.UUID, horse int) domain.KareraLeg {
	return domain.KareraLeg{RaceID: race, Horse: horse}
}

func winPool(t *testing.T, race uuid.UUID, bets []domain.KareraBet) *domain.PoolSnapshot {
	t.Helper()
	p := domain.WinPoolFromBets(race, bets)
	p.Rate = d("0.04")
	return p
}

func outcomeOf(plan *domain.RacePlan, id uuid.UUID) (domain.BetOutcome, bool) {
	for _, o := range plan.Outcomes {
		if o.BetID == id {
			return o, true
		}
	}
	return domain.BetOutcome{}, false
}

// ── Win & positional bets ─────────────────────────────────────────────────────

func TestPlanRaceSettlement_WinPariMutuel(t *testing.T) {
	race := uuid.New()
	winner := kareraBet(domain.BetTypeWin, "100", leg(race, 3))
	loser := kareraBet(domain.BetTypeWin, "300", leg(race, 5))
	bets := []domain.KareraBet{winner, loser}

	plan, err := domain.PlanRaceSettlement(race, winPool(t, race, bets), bets, domain.FinishOrder{3, 5, 1}, nil)
	require.NoError(t, err)

	// 400 × 0.96 / 100 = 3.84
	o, ok := outcomeOf(plan, winner.ID)
	require.True(t, ok)
	assert.Equal(t, domain.BetStatusWon, o.Status)
	assert.Equal(t, "384.00", o.Payout.StringFixed(2))

	o, ok = outcomeOf(plan, loser.ID)
	require.True(t, ok)
	assert.Equal(t, domain.BetStatusLost, o.Status)
}

func TestPlanRaceSettlement_WinOddsOverride(t *testing.T) {
	race := uuid.New()
	b := kareraBet(domain.BetTypeWin, "100", leg(race, 3))
	bets := []domain.KareraBet{b}

	plan, err := domain.PlanRaceSettlement(race, winPool(t, race, bets), bets, domain.FinishOrder{3},
		domain.OddsMap{domain.BetTypeWin: d("2.5")})
	require.NoError(t, err)
	o, _ := outcomeOf(plan, b.ID)
	assert.Equal(t, "250.00", o.Payout.StringFixed(2))
}

func TestPlanRaceSettlement_Trifecta(t *testing.T) {
	race := uuid.New()
	hit := kareraBet(domain.BetTypeTrifecta, "20", leg(race, 4), leg(race, 2), leg(race, 7))
	miss := kareraBet(domain.BetTypeTrifecta, "20", leg(race, 4), leg(race, 7), leg(race, 2))
	bets := []domain.KareraBet{hit, miss}

	plan, err := domain.PlanRaceSettlement(race, winPool(t, race, bets), bets, domain.FinishOrder{4, 2, 7},
		domain.OddsMap{domain.BetTypeTrifecta: d("45.5")})
	require.NoError(t, err)

	o, _ := outcomeOf(plan, hit.ID)
	assert.Equal(t, domain.BetStatusWon, o.Status)
	assert.Equal(t, "910.00", o.Payout.StringFixed(2))

	o, _ = outcomeOf(plan, miss.ID)
	assert.Equal(t, domain.BetStatusLost, o.Status)
}

func TestPlanRaceSettlement_MissingExoticOdds(t *testing.T) {
	race := uuid.New()
	b := kareraBet(domain.BetTypeForecast, "20", leg(race, 1), leg(race, 2))
	bets := []domain.KareraBet{b}

	_, err := domain.PlanRaceSettlement(race, winPool(t, race, bets), bets, domain.FinishOrder{1, 2}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── Multi-race bets ───────────────────────────────────────────────────────────

func TestPlanRaceSettlement_DailyDouble(t *testing.T) {
	r1, r2 := uuid.New(), uuid.New()
	dd := kareraBet(domain.BetTypeDailyDouble, "50", leg(r1, 6), leg(r2, 2))
	odds := domain.OddsMap{domain.BetTypeDailyDouble: d("12")}

	// First leg wins: bet stays pending.
	plan, err := domain.PlanRaceSettlement(r1, winPool(t, r1, nil), []domain.KareraBet{dd}, domain.FinishOrder{6}, odds)
	require.NoError(t, err)
	_, settled := outcomeOf(plan, dd.ID)
	assert.False(t, settled)
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, domain.LegWon, plan.Legs[0].Result)

	// Final leg wins: bet pays.
	dd.Legs[0].Result = domain.LegWon
	plan, err = domain.PlanRaceSettlement(r2, winPool(t, r2, nil), []domain.KareraBet{dd}, domain.FinishOrder{2}, odds)
	require.NoError(t, err)
	o, settled := outcomeOf(plan, dd.ID)
	require.True(t, settled)
	assert.Equal(t, "600.00", o.Payout.StringFixed(2))
}

func TestPlanRaceSettlement_MultiLegLosesEarly(t *testing.T) {
	r1, r2, r3, r4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	p4 := kareraBet(domain.BetTypePick4, "10", leg(r1, 1), leg(r2, 1), leg(r3, 1), leg(r4, 1))

	plan, err := domain.PlanRaceSettlement(r1, winPool(t, r1, nil), []domain.KareraBet{p4}, domain.FinishOrder{2}, nil)
	require.NoError(t, err)
	o, settled := outcomeOf(plan, p4.ID)
	require.True(t, settled)
	assert.Equal(t, domain.BetStatusLost, o.Status)
}

// ── Scratch & cancel ──────────────────────────────────────────────────────────

func TestPlanScratch(t *testing.T) {
	race, other := uuid.New(), uuid.New()
	onHorse := kareraBet(domain.BetTypeWin, "50", leg(race, 4))
	elsewhere := kareraBet(domain.BetTypeWin, "50", leg(race, 2))
	multi := kareraBet(domain.BetTypeDailyDouble, "30", leg(other, 1), leg(race, 4))

	plan := domain.PlanScratch(race, 4, []domain.KareraBet{onHorse, elsewhere, multi})
	assert.Equal(t, 2, plan.Refunded)
	assert.Equal(t, "80.00", plan.RefundTotal.StringFixed(2))

	o, ok := outcomeOf(plan, onHorse.ID)
	require.True(t, ok)
	assert.True(t, o.Credit.Equal(d("50")))
	_, ok = outcomeOf(plan, elsewhere.ID)
	assert.False(t, ok)
}

func TestPlanRaceRefunds(t *testing.T) {
	race, other := uuid.New(), uuid.New()
	bets := []domain.KareraBet{
		kareraBet(domain.BetTypeWin, "10", leg(race, 1)),
		kareraBet(domain.BetTypeDailyDouble, "20", leg(race, 1), leg(other, 3)),
		kareraBet(domain.BetTypeWin, "40", leg(other, 1)),
	}
	plan := domain.PlanRaceRefunds(race, bets)
	assert.Equal(t, 2, plan.Refunded)
	assert.Equal(t, "30.00", plan.RefundTotal.StringFixed(2))
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidateFinishOrder(t *testing.T) {
	race := uuid.New()
	horses := []domain.Horse{
		{RaceID: race, Number: 1}, {RaceID: race, Number: 2},
		{RaceID: race, Number: 3, Scratched: true},
	}
	assert.NoError(t, domain.ValidateFinishOrder(domain.FinishOrder{2, 1}, horses))
	assert.ErrorIs(t, domain.ValidateFinishOrder(nil, horses), domain.ErrValidation)
	assert.ErrorIs(t, domain.ValidateFinishOrder(domain.FinishOrder{1, 1}, horses), domain.ErrValidation)
	assert.ErrorIs(t, domain.ValidateFinishOrder(domain.FinishOrder{3}, horses), domain.ErrValidation)
	assert.ErrorIs(t, domain.ValidateFinishOrder(domain.FinishOrder{9}, horses), domain.ErrHorseNotFound)
}

func TestPlaceKareraBetRequest_Validate(t *testing.T) {
	race := uuid.New()
	req := domain.PlaceKareraBetRequest{
		UserID:  uuid.New(),
		BetType: domain.BetTypeForecast,
		Amount:  d("20"),
		Source:  domain.SourceUser,
		Legs:    []domain.KareraLeg{{LegNo: 1, RaceID: race, Horse: 1}, {LegNo: 2, RaceID: race, Horse: 2}},
	}
	require.NoError(t, req.Validate(d("10")))

	req.Legs[1].Horse = 1
	assert.ErrorIs(t, req.Validate(d("10")), domain.ErrValidation, "forecast horses must differ")

	req.BetType = domain.BetTypeDailyDouble
	assert.ErrorIs(t, req.Validate(d("10")), domain.ErrValidation, "daily double legs must span races")
}

func TestFinishOrder_ScanValue(t *testing.T) {
	v, err := domain.FinishOrder{3, 1, 2}.Value()
	require.NoError(t, err)
	var f domain.FinishOrder
	require.NoError(t, f.Scan(v))
	assert.True(t, f.Equal(domain.FinishOrder{3, 1, 2}))
}
