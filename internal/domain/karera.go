package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Bet types
// ──────────────────────────────────────────────────────────────────────────────

// KareraBetType is a horse-racing wager kind.
type KareraBetType string

const (
	BetTypeWin         KareraBetType = "win"          // first place, pari-mutuel
	BetTypeForecast    KareraBetType = "forecast"     // first two in order
	BetTypeTrifecta    KareraBetType = "trifecta"     // first three in order
	BetTypeDailyDouble KareraBetType = "daily_double" // winners of two consecutive races
	BetTypePick4       KareraBetType = "pick4"
	BetTypePick5       KareraBetType = "pick5"
	BetTypePick6       KareraBetType = "pick6"
)

var betTypeLegs = map[KareraBetType]int{
	BetTypeWin:         1,
	BetTypeForecast:    2,
	BetTypeTrifecta:    3,
	BetTypeDailyDouble: 2,
	BetTypePick4:       4,
	BetTypePick5:       5,
	BetTypePick6:       6,
}

// IsValid returns true for a recognised bet type.
func (t KareraBetType) IsValid() bool {
	_, ok := betTypeLegs[t]
	return ok
}

// Legs returns the number of selections the bet type needs.
func (t KareraBetType) Legs() int {
	return betTypeLegs[t]
}

// IsMultiRace is true for bets whose legs span consecutive races.
func (t KareraBetType) IsMultiRace() bool {
	switch t {
	case BetTypeDailyDouble, BetTypePick4, BetTypePick5, BetTypePick6:
		return true
	}
	return false
}

// OddsMap carries the operator-declared odds per bet type at announcement.
type OddsMap map[KareraBetType]decimal.Decimal

// ──────────────────────────────────────────────────────────────────────────────
// Race & horses
// ──────────────────────────────────────────────────────────────────────────────

// FinishOrder lists horse numbers from first place down. Stored as JSON.
type FinishOrder []int

// Value implements driver.Valuer.
func (f FinishOrder) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal([]int(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *FinishOrder) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]int)(f))
	case string:
		return json.Unmarshal([]byte(v), (*[]int)(f))
	}
	return fmt.Errorf("finish order: unsupported scan type %T", src)
}

// Equal reports whether two finish orders are identical.
func (f FinishOrder) Equal(other FinishOrder) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Race is a single karera race with the same lifecycle as a match.
type Race struct {
	ID          uuid.UUID   `json:"id"           db:"id"`
	RaceNumber  int         `json:"race_number"  db:"race_number"`
	Name        string      `json:"name"         db:"name"`
	Status      EventStatus `json:"status"       db:"status"`
	FinishOrder FinishOrder `json:"finish_order" db:"finish_order"`
	LastCallAt  *time.Time  `json:"last_call_at" db:"last_call_at"`
	ClosedAt    *time.Time  `json:"closed_at"    db:"closed_at"`
	FinishedAt  *time.Time  `json:"finished_at"  db:"finished_at"`
	CreatedAt   time.Time   `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"   db:"updated_at"`
}

// Horse is one entry in a race.
type Horse struct {
	RaceID      uuid.UUID  `json:"race_id"      db:"race_id"`
	Number      int        `json:"number"       db:"number"`
	Name        string     `json:"name"         db:"name"`
	Scratched   bool       `json:"scratched"    db:"scratched"`
	ScratchedAt *time.Time `json:"scratched_at" db:"scratched_at"`
}

// RaceView is the read model of a race: its horses plus the live or frozen
// win pool and the derived win odds.
type RaceView struct {
	Race   *Race              `json:"race"`
	Horses []Horse            `json:"horses"`
	Pool   *PoolSnapshot      `json:"pool"`
	Odds   map[Selection]Odds `json:"odds"`
}

// WinSelections returns the win-pool keys of every non-scratched horse.
func WinSelections(horses []Horse) []Selection {
	out := make([]Selection, 0, len(horses))
	for _, h := range horses {
		if !h.Scratched {
			out = append(out, HorseSelection(h.Number))
		}
	}
	return out
}

// HorseSelection is the win-pool key of a horse number.
func HorseSelection(number int) Selection {
	return Selection(strconv.Itoa(number))
}

// ──────────────────────────────────────────────────────────────────────────────
// Karera bets
// ──────────────────────────────────────────────────────────────────────────────

// LegResult is the state of one leg of a karera bet.
type LegResult string

const (
	LegPending   LegResult = "pending"
	LegWon       LegResult = "won"
	LegLost      LegResult = "lost"
	LegScratched LegResult = "scratched"
)

// KareraLeg is one horse pick of a karera bet. Win, forecast and trifecta legs
// all sit in one race with LegNo as the finishing position; multi-race legs
// sit one per race with LegNo as the order in the sequence.
type KareraLeg struct {
	BetID  uuid.UUID `json:"bet_id"  db:"bet_id"`
	LegNo  int       `json:"leg_no"  db:"leg_no"`
	RaceID uuid.UUID `json:"race_id" db:"race_id"`
	Horse  int       `json:"horse"   db:"horse"`
	Result LegResult `json:"result"  db:"result"`
}

// KareraBet is a horse-racing wager and its legs.
type KareraBet struct {
	ID        uuid.UUID        `json:"id"         db:"id"`
	UserID    uuid.UUID        `json:"user_id"    db:"user_id"`
	BetType   KareraBetType    `json:"bet_type"   db:"bet_type"`
	Amount    decimal.Decimal  `json:"amount"     db:"amount"`
	Source    StakeSource      `json:"source"     db:"source"`
	Status    BetStatus        `json:"status"     db:"status"`
	Payout    *decimal.Decimal `json:"payout"     db:"payout"`
	PlacedAt  time.Time        `json:"placed_at"  db:"placed_at"`
	SettledAt *time.Time       `json:"settled_at" db:"settled_at"`
	Legs      []KareraLeg      `json:"legs"       db:"-"`
}

// IsPending returns true while the bet awaits settlement.
func (b *KareraBet) IsPending() bool {
	return !b.Status.IsFinal()
}

// LegsIn returns the legs placed on raceID.
func (b *KareraBet) LegsIn(raceID uuid.UUID) []KareraLeg {
	var out []KareraLeg
	for _, l := range b.Legs {
		if l.RaceID == raceID {
			out = append(out, l)
		}
	}
	return out
}

// HasHorse reports whether any leg picks horse in raceID.
func (b *KareraBet) HasHorse(raceID uuid.UUID, horse int) bool {
	for _, l := range b.Legs {
		if l.RaceID == raceID && l.Horse == horse {
			return true
		}
	}
	return false
}

func (b *KareraBet) asBet() Bet {
	return Bet{ID: b.ID, UserID: b.UserID, Amount: b.Amount, Source: b.Source, Status: b.Status}
}

// PlaceKareraBetRequest carries the inputs for a karera wager.
type PlaceKareraBetRequest struct {
	UserID  uuid.UUID
	BetType KareraBetType
	Amount  decimal.Decimal
	Source  StakeSource
	Legs    []KareraLeg
}

// Validate checks leg count and shape against the bet type.
func (r PlaceKareraBetRequest) Validate(minStake decimal.Decimal) error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !r.BetType.IsValid() {
		return fmt.Errorf("%w: unknown bet type %q", ErrValidation, r.BetType)
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, r.Source)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ErrValidation)
	}
	if r.Amount.LessThan(minStake) {
		return fmt.Errorf("%w: minimum is %s", ErrBetTooSmall, minStake)
	}
	if len(r.Legs) != r.BetType.Legs() {
		return fmt.Errorf("%w: %s needs %d legs, got %d", ErrValidation, r.BetType, r.BetType.Legs(), len(r.Legs))
	}

	races := make(map[uuid.UUID]bool)
	horses := make(map[int]bool)
	for i, l := range r.Legs {
		if l.LegNo != i+1 {
			return fmt.Errorf("%w: legs must be numbered 1..%d in order", ErrValidation, len(r.Legs))
		}
		if l.Horse <= 0 {
			return fmt.Errorf("%w: leg %d has no horse", ErrValidation, l.LegNo)
		}
		if l.RaceID == uuid.Nil {
			return fmt.Errorf("%w: leg %d has no race", ErrValidation, l.LegNo)
		}
		races[l.RaceID] = true
		horses[l.Horse] = true
	}
	if r.BetType.IsMultiRace() {
		if len(races) != len(r.Legs) {
			return fmt.Errorf("%w: %s legs must be in distinct races", ErrValidation, r.BetType)
		}
	} else {
		if len(races) != 1 {
			return fmt.Errorf("%w: %s legs must be in one race", ErrValidation, r.BetType)
		}
		if len(horses) != len(r.Legs) {
			return fmt.Errorf("%w: %s horses must be distinct", ErrValidation, r.BetType)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Race settlement planning
// ──────────────────────────────────────────────────────────────────────────────

// LegUpdate is the planned result of one leg.
type LegUpdate struct {
	BetID  uuid.UUID `json:"bet_id"`
	LegNo  int       `json:"leg_no"`
	Result LegResult `json:"result"`
}

// RacePlan is the precomputed result of announcing or cancelling a race.
// Bets with later legs still pending appear only in Legs.
type RacePlan struct {
	SettlementPlan
	RaceID uuid.UUID   `json:"race_id"`
	Legs   []LegUpdate `json:"legs"`
}

// ValidateFinishOrder requires distinct, entered, non-scratched horses.
func ValidateFinishOrder(finish FinishOrder, horses []Horse) error {
	if len(finish) == 0 {
		return fmt.Errorf("%w: finish order is empty", ErrValidation)
	}
	entered := make(map[int]Horse, len(horses))
	for _, h := range horses {
		entered[h.Number] = h
	}
	seen := make(map[int]bool, len(finish))
	for _, n := range finish {
		h, ok := entered[n]
		if !ok {
			return fmt.Errorf("%w: horse %d", ErrHorseNotFound, n)
		}
		if h.Scratched {
			return fmt.Errorf("%w: horse %d is scratched", ErrValidation, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: horse %d listed twice", ErrValidation, n)
		}
		seen[n] = true
	}
	return nil
}

// PlanRaceSettlement resolves every pending leg on the race. Win bets pay
// pari-mutuel odds from the frozen win pool unless odds["win"] is given; every
// other type pays stake × odds[type]. A missing price for a winning exotic
// bet fails the whole plan.
func PlanRaceSettlement(raceID uuid.UUID, snap *PoolSnapshot, bets []KareraBet, finish FinishOrder, odds OddsMap) (*RacePlan, error) {
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	plan := &RacePlan{RaceID: raceID}
	plan.EventID = raceID
	plan.GrossPool = snap.GrandTotal()
	plan.Commission = snap.PoolTotal().Mul(snap.Rate).RoundDown(2)

	for i := range bets {
		b := &bets[i]
		if !b.IsPending() {
			plan.Skipped++
			continue
		}
		legs := b.LegsIn(raceID)
		if len(legs) == 0 {
			continue
		}

		allWon := true
		for _, l := range legs {
			if l.Result != LegPending {
				continue
			}
			res := legResult(b.BetType, l, finish)
			plan.Legs = append(plan.Legs, LegUpdate{BetID: b.ID, LegNo: l.LegNo, Result: res})
			if res == LegLost {
				allWon = false
			}
		}
		if !allWon {
			plan.add(lost(b.asBet()))
			continue
		}
		if !otherLegsWon(b, raceID) {
			continue
		}

		price, err := priceFor(b, raceID, snap, odds)
		if err != nil {
			return nil, err
		}
		payout := decimal.Zero
		if snap.Basis.Counts(b.Source) {
			payout = PayoutFor(b.Amount, price)
		}
		plan.add(won(b.asBet(), payout))
	}
	return plan, nil
}

func legResult(t KareraBetType, l KareraLeg, finish FinishOrder) LegResult {
	pos := 1
	if !t.IsMultiRace() {
		pos = l.LegNo
	}
	if pos <= len(finish) && finish[pos-1] == l.Horse {
		return LegWon
	}
	return LegLost
}

func otherLegsWon(b *KareraBet, raceID uuid.UUID) bool {
	for _, l := range b.Legs {
		if l.RaceID != raceID && l.Result != LegWon {
			return false
		}
	}
	return true
}

func priceFor(b *KareraBet, raceID uuid.UUID, snap *PoolSnapshot, odds OddsMap) (decimal.Decimal, error) {
	if price, ok := odds[b.BetType]; ok {
		if !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: odds for %s must be positive", ErrValidation, b.BetType)
		}
		return price, nil
	}
	if b.BetType != BetTypeWin {
		return decimal.Zero, fmt.Errorf("%w: no odds declared for winning %s bets", ErrValidation, b.BetType)
	}
	legs := b.LegsIn(raceID)
	return snap.OddsFor(HorseSelection(legs[0].Horse))
}

// PlanScratch refunds every pending bet with a leg on the scratched horse.
func PlanScratch(raceID uuid.UUID, horse int, bets []KareraBet) *RacePlan {
	plan := &RacePlan{RaceID: raceID}
	plan.EventID = raceID
	for i := range bets {
		b := &bets[i]
		if !b.IsPending() || !b.HasHorse(raceID, horse) {
			continue
		}
		for _, l := range b.LegsIn(raceID) {
			if l.Horse == horse {
				plan.Legs = append(plan.Legs, LegUpdate{BetID: b.ID, LegNo: l.LegNo, Result: LegScratched})
			}
		}
		plan.add(refunded(b.asBet()))
	}
	return plan
}

// PlanRaceRefunds refunds every pending bet with a leg in the race.
func PlanRaceRefunds(raceID uuid.UUID, bets []KareraBet) *RacePlan {
	plan := &RacePlan{RaceID: raceID}
	plan.EventID = raceID
	for i := range bets {
		b := &bets[i]
		if !b.IsPending() || len(b.LegsIn(raceID)) == 0 {
			continue
		}
		plan.GrossPool = plan.GrossPool.Add(b.Amount)
		plan.add(refunded(b.asBet()))
	}
	return plan
}

// WinPoolFromBets rebuilds the race win pool from non-cancelled win bets.
func WinPoolFromBets(raceID uuid.UUID, bets []KareraBet) *PoolSnapshot {
	p := NewPoolSnapshot(raceID)
	for _, b := range bets {
		if b.BetType != BetTypeWin || b.Status == BetStatusCancelled {
			continue
		}
		for _, l := range b.LegsIn(raceID) {
			p.totalsFor(HorseSelection(l.Horse)).add(b.Source, b.Amount)
		}
	}
	return p
}
