package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Settlement plan
// ──────────────────────────────────────────────────────────────────────────────

// BetOutcome is the planned final state of one bet. Credit is what the owning
// wallet receives (payout for a win, the stake for a refund, zero otherwise).
type BetOutcome struct {
	BetID  uuid.UUID       `json:"bet_id"`
	UserID uuid.UUID       `json:"user_id"`
	Source StakeSource     `json:"source"`
	Stake  decimal.Decimal `json:"stake"`
	Status BetStatus       `json:"status"`
	Payout decimal.Decimal `json:"payout"`
	Credit decimal.Decimal `json:"credit"`
	TxType TxType          `json:"tx_type,omitempty"`
}

// SettlementPlan is the full, precomputed result of settling or cancelling an
// event. Nothing is applied until every outcome is known.
type SettlementPlan struct {
	EventID     uuid.UUID       `json:"event_id"`
	Winner      Selection       `json:"winner,omitempty"`
	WinnerOdds  decimal.Decimal `json:"winner_odds"`
	Outcomes    []BetOutcome    `json:"outcomes"`
	Won         int             `json:"won"`
	Lost        int             `json:"lost"`
	Refunded    int             `json:"refunded"`
	Skipped     int             `json:"skipped"`
	PayoutTotal decimal.Decimal `json:"payout_total"`
	RefundTotal decimal.Decimal `json:"refund_total"`
	GrossPool   decimal.Decimal `json:"gross_pool"`
	Commission  decimal.Decimal `json:"commission"`

	// StakesClosed sums the stakes this plan finalises as won or lost.
	StakesClosed decimal.Decimal `json:"stakes_closed"`
}

// HouseResult is what the house keeps once the plan is applied: closed stakes
// less payouts. Refunds are neutral. It is negative when payouts exceed the
// stakes, as with the draw multiplier or declared exotic odds.
func (p *SettlementPlan) HouseResult() decimal.Decimal {
	return p.StakesClosed.Sub(p.PayoutTotal)
}

// Retained is the house result beyond the plasada: rounding breakage and the
// net pool of an unbacked winning side. Negative means the house funds the
// difference.
func (p *SettlementPlan) Retained() decimal.Decimal {
	return p.HouseResult().Sub(p.Commission)
}

func (p *SettlementPlan) add(o BetOutcome) {
	p.Outcomes = append(p.Outcomes, o)
	switch o.Status {
	case BetStatusWon:
		p.Won++
		p.PayoutTotal = p.PayoutTotal.Add(o.Payout)
		p.StakesClosed = p.StakesClosed.Add(o.Stake)
	case BetStatusLost:
		p.Lost++
		p.StakesClosed = p.StakesClosed.Add(o.Stake)
	case BetStatusCancelled:
		p.Refunded++
		p.RefundTotal = p.RefundTotal.Add(o.Credit)
	}
}

func won(b Bet, payout decimal.Decimal) BetOutcome {
	o := BetOutcome{
		BetID: b.ID, UserID: b.UserID, Source: b.Source, Stake: b.Amount,
		Status: BetStatusWon, Payout: payout, Credit: payout,
	}
	if payout.IsPositive() {
		o.TxType = TxPayout
	}
	return o
}

func lost(b Bet) BetOutcome {
	return BetOutcome{
		BetID: b.ID, UserID: b.UserID, Source: b.Source, Stake: b.Amount,
		Status: BetStatusLost, Payout: decimal.Zero, Credit: decimal.Zero,
	}
}

func refunded(b Bet) BetOutcome {
	return BetOutcome{
		BetID: b.ID, UserID: b.UserID, Source: b.Source, Stake: b.Amount,
		Status: BetStatusCancelled, Payout: decimal.Zero, Credit: b.Amount, TxType: TxRefund,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Planners
// ──────────────────────────────────────────────────────────────────────────────

// PoolFromBets rebuilds per-source totals from the non-cancelled bets of an
// event, for reconciliation against the ledger snapshot.
func PoolFromBets(eventID uuid.UUID, bets []Bet) *PoolSnapshot {
	p := NewPoolSnapshot(eventID)
	for _, b := range bets {
		if b.Status == BetStatusCancelled {
			continue
		}
		p.totalsFor(b.Selection).add(b.Source, b.Amount)
	}
	return p
}

// PlanMatchSettlement computes the outcome of every pending bet from the frozen
// snapshot. Non-pending bets are counted as skipped and never touched again.
//
// A meron or wala win pays stake × odds(winner); other bets lose. A draw pays
// draw bets at the frozen draw multiplier and refunds meron/wala stakes. Under
// BasisUserOnly, bot and injection bets settle with a zero payout.
func PlanMatchSettlement(snap *PoolSnapshot, bets []Bet, winner Selection) (*SettlementPlan, error) {
	if !winner.IsSabong() {
		return nil, fmt.Errorf("%w: unknown winner %q", ErrValidation, winner)
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	odds, err := snap.OddsFor(winner)
	if err != nil {
		return nil, err
	}

	plan := &SettlementPlan{
		EventID:    snap.EventID,
		Winner:     winner,
		WinnerOdds: odds,
		GrossPool:  snap.GrandTotal(),
	}
	for _, b := range bets {
		if !b.IsPending() {
			plan.Skipped++
			continue
		}
		switch {
		case b.Selection == winner:
			payout := decimal.Zero
			if snap.Basis.Counts(b.Source) {
				payout = PayoutFor(b.Amount, odds)
			}
			plan.add(won(b, payout))
		case winner == SelectionDraw:
			plan.add(refunded(b))
		default:
			plan.add(lost(b))
		}
	}
	plan.Commission = houseCommission(snap, winner)
	return plan, nil
}

// houseCommission is the plasada on the part of the pool that was actually
// contested. A draw refunds meron/wala so only the draw side is charged.
func houseCommission(snap *PoolSnapshot, winner Selection) decimal.Decimal {
	if winner == SelectionDraw {
		return decimal.Zero
	}
	return snap.PoolTotal().Mul(snap.Rate).RoundDown(2)
}

// PlanRefunds returns a plan that refunds every pending bet its stake.
func PlanRefunds(eventID uuid.UUID, bets []Bet) *SettlementPlan {
	plan := &SettlementPlan{EventID: eventID}
	for _, b := range bets {
		if !b.IsPending() {
			plan.Skipped++
			continue
		}
		plan.GrossPool = plan.GrossPool.Add(b.Amount)
		plan.add(refunded(b))
	}
	return plan
}
