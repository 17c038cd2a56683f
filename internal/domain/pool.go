package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Stake sources & payout basis
// ──────────────────────────────────────────────────────────────────────────────

// StakeSource tags where a stake came from.
type StakeSource string

const (
	SourceUser      StakeSource = "user"      // genuine bettor
	SourceBot       StakeSource = "bot"       // operator-run bot account
	SourceInjection StakeSource = "injection" // house-seeded liquidity
)

// IsValid returns true for user, bot and injection.
func (s StakeSource) IsValid() bool {
	return s == SourceUser || s == SourceBot || s == SourceInjection
}

// PayoutBasis decides which buckets feed the odds at settlement.
type PayoutBasis string

const (
	// BasisAllSources counts bot and injected stakes exactly like user stakes;
	// winning bot/injection bets are paid to their owning accounts.
	BasisAllSources PayoutBasis = "all_sources"

	// BasisUserOnly derives odds from user sub-totals; bot and injection bets
	// are pool-only and never receive a payout.
	BasisUserOnly PayoutBasis = "user_only"
)

// IsValid returns true for a recognised basis.
func (b PayoutBasis) IsValid() bool {
	return b == BasisAllSources || b == BasisUserOnly
}

// Counts reports whether stakes from src contribute to odds under b.
func (b PayoutBasis) Counts(src StakeSource) bool {
	if b == BasisUserOnly {
		return src == SourceUser
	}
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Per-selection totals
// ──────────────────────────────────────────────────────────────────────────────

// SourceTotals holds the partitioned running sums of one selection.
// Total is stored independently so the partition can be verified.
type SourceTotals struct {
	User      decimal.Decimal `json:"user"`
	Bot       decimal.Decimal `json:"bot"`
	Injection decimal.Decimal `json:"injection"`
	Total     decimal.Decimal `json:"total"`
}

// Of returns the bucket for src.
func (t SourceTotals) Of(src StakeSource) decimal.Decimal {
	switch src {
	case SourceUser:
		return t.User
	case SourceBot:
		return t.Bot
	case SourceInjection:
		return t.Injection
	}
	return decimal.Zero
}

// PartitionSum returns User + Bot + Injection.
func (t SourceTotals) PartitionSum() decimal.Decimal {
	return t.User.Add(t.Bot).Add(t.Injection)
}

// ForBasis returns the amount that counts toward odds under basis b.
func (t SourceTotals) ForBasis(b PayoutBasis) decimal.Decimal {
	if b == BasisUserOnly {
		return t.User
	}
	return t.Total
}

func (t *SourceTotals) add(src StakeSource, amount decimal.Decimal) {
	switch src {
	case SourceUser:
		t.User = t.User.Add(amount)
	case SourceBot:
		t.Bot = t.Bot.Add(amount)
	case SourceInjection:
		t.Injection = t.Injection.Add(amount)
	}
	t.Total = t.Total.Add(amount)
}

// ──────────────────────────────────────────────────────────────────────────────
// PoolSnapshot
// ──────────────────────────────────────────────────────────────────────────────

// PoolBucket is one persisted (event, selection, source) running sum.
type PoolBucket struct {
	EventID   uuid.UUID       `db:"event_id"`
	Selection Selection       `db:"selection"`
	Source    StakeSource     `db:"source"`
	Amount    decimal.Decimal `db:"amount"`
}

// PoolTotal is one persisted (event, selection) grand total.
type PoolTotal struct {
	EventID   uuid.UUID       `db:"event_id"`
	Selection Selection       `db:"selection"`
	Total     decimal.Decimal `db:"total"`
}

// PoolSnapshot is the state of an event's pool at a point in time. Taken live
// it drives the odds display; frozen at close it is the sole input to
// settlement, together with the rate and policy frozen alongside it.
type PoolSnapshot struct {
	EventID        uuid.UUID                   `json:"event_id"`
	Selections     map[Selection]*SourceTotals `json:"selections"`
	Rate           decimal.Decimal             `json:"rate"`
	Basis          PayoutBasis                 `json:"basis"`
	DrawMultiplier decimal.Decimal             `json:"draw_multiplier"`
	FrozenAt       *time.Time                  `json:"frozen_at,omitempty"`
}

// NewPoolSnapshot returns an empty snapshot with every listed selection present.
func NewPoolSnapshot(eventID uuid.UUID, selections ...Selection) *PoolSnapshot {
	p := &PoolSnapshot{
		EventID:    eventID,
		Selections: make(map[Selection]*SourceTotals, len(selections)),
		Rate:       DefaultPlasadaRate,
		Basis:      BasisAllSources,
	}
	for _, sel := range selections {
		p.Selections[sel] = &SourceTotals{}
	}
	return p
}

// BuildSnapshot assembles a snapshot from persisted rows. Sub-totals come from
// buckets and grand totals from totals; Verify compares the two.
func BuildSnapshot(eventID uuid.UUID, buckets []PoolBucket, totals []PoolTotal, selections ...Selection) *PoolSnapshot {
	p := NewPoolSnapshot(eventID, selections...)
	for _, b := range buckets {
		t := p.totalsFor(b.Selection)
		switch b.Source {
		case SourceUser:
			t.User = t.User.Add(b.Amount)
		case SourceBot:
			t.Bot = t.Bot.Add(b.Amount)
		case SourceInjection:
			t.Injection = t.Injection.Add(b.Amount)
		}
	}
	for _, row := range totals {
		t := p.totalsFor(row.Selection)
		t.Total = t.Total.Add(row.Total)
	}
	return p
}

func (p *PoolSnapshot) totalsFor(sel Selection) *SourceTotals {
	if p.Selections == nil {
		p.Selections = make(map[Selection]*SourceTotals)
	}
	t, ok := p.Selections[sel]
	if !ok {
		t = &SourceTotals{}
		p.Selections[sel] = t
	}
	return t
}

// Record adds a stake to the source bucket and the grand total of sel.
// Negative amounts release a stake (scratch refunds).
func (p *PoolSnapshot) Record(sel Selection, src StakeSource, amount decimal.Decimal) error {
	if !src.IsValid() {
		return fmt.Errorf("%w: unknown stake source %q", ErrValidation, src)
	}
	p.totalsFor(sel).add(src, amount)
	return nil
}

// Totals returns a copy of the totals of sel (zero when absent).
func (p *PoolSnapshot) Totals(sel Selection) SourceTotals {
	if t, ok := p.Selections[sel]; ok {
		return *t
	}
	return SourceTotals{}
}

// GrandTotal sums the stored grand totals across all selections.
func (p *PoolSnapshot) GrandTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range p.Selections {
		sum = sum.Add(t.Total)
	}
	return sum
}

// PoolTotal sums the amounts that count toward odds under the snapshot basis.
func (p *PoolSnapshot) PoolTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range p.Selections {
		sum = sum.Add(t.ForBasis(p.Basis))
	}
	return sum
}

// SortedSelections returns the selection keys in a stable order.
func (p *PoolSnapshot) SortedSelections() []Selection {
	keys := make([]Selection, 0, len(p.Selections))
	for k := range p.Selections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Verify checks Total == User + Bot + Injection for every selection and that
// no bucket is negative.
func (p *PoolSnapshot) Verify() error {
	for _, sel := range p.SortedSelections() {
		t := p.Selections[sel]
		if t.User.IsNegative() || t.Bot.IsNegative() || t.Injection.IsNegative() || t.Total.IsNegative() {
			return fmt.Errorf("%w: negative bucket on %s", ErrLedgerInconsistency, sel)
		}
		if !t.Total.Equal(t.PartitionSum()) {
			return fmt.Errorf("%w: %s total %s != user %s + bot %s + injection %s",
				ErrLedgerInconsistency, sel, t.Total, t.User, t.Bot, t.Injection)
		}
	}
	return nil
}

// Reconcile compares this snapshot against one rebuilt from bet stakes. Every
// selection and source must agree exactly.
func (p *PoolSnapshot) Reconcile(fromBets *PoolSnapshot) error {
	seen := make(map[Selection]bool)
	for sel := range p.Selections {
		seen[sel] = true
	}
	for sel := range fromBets.Selections {
		seen[sel] = true
	}
	for sel := range seen {
		want := p.Totals(sel)
		got := fromBets.Totals(sel)
		for _, src := range []StakeSource{SourceUser, SourceBot, SourceInjection} {
			if !want.Of(src).Equal(got.Of(src)) {
				return fmt.Errorf("%w: %s/%s pool %s but bets sum to %s",
					ErrLedgerInconsistency, sel, src, want.Of(src), got.Of(src))
			}
		}
	}
	return nil
}

// OddsFor returns the decimal odds of sel under the snapshot rate and basis.
// A sabong draw pays the fixed draw multiplier when one is configured.
func (p *PoolSnapshot) OddsFor(sel Selection) (decimal.Decimal, error) {
	if sel == SelectionDraw && p.DrawMultiplier.IsPositive() {
		return p.DrawMultiplier, nil
	}
	side := p.Totals(sel).ForBasis(p.Basis)
	return CalculateOdds(side, p.PoolTotal(), p.Rate)
}

// AllOdds returns the display odds of every selection in the snapshot.
func (p *PoolSnapshot) AllOdds() (map[Selection]Odds, error) {
	out := make(map[Selection]Odds, len(p.Selections))
	for sel := range p.Selections {
		dec, err := p.OddsFor(sel)
		if err != nil {
			return nil, err
		}
		out[sel] = NewOdds(dec)
	}
	return out, nil
}
