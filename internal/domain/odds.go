package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultPlasadaRate is the house commission applied to the gross pool (4 %).
var DefaultPlasadaRate = decimal.NewFromFloat(0.04)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// ──────────────────────────────────────────────────────────────────────────────
// Pari-mutuel odds
// ──────────────────────────────────────────────────────────────────────────────

// CalculateOdds returns the decimal payout multiplier for one side of a pool.
//
//	netPool = totalPool × (1 − rate)
//	odds    = netPool / sideTotal       when sideTotal > 0
//	odds    = 2 × (1 − rate)            otherwise
//
// Negative amounts and a rate outside [0,1) are rejected: a negative pool
// means the ledger upstream is broken.
func CalculateOdds(sideTotal, totalPool, rate decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateRate(rate); err != nil {
		return decimal.Zero, err
	}
	if sideTotal.IsNegative() || totalPool.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative pool amount (side=%s total=%s)",
			ErrValidation, sideTotal, totalPool)
	}
	if sideTotal.GreaterThan(totalPool) {
		return decimal.Zero, fmt.Errorf("%w: side total %s exceeds pool %s",
			ErrValidation, sideTotal, totalPool)
	}
	keep := one.Sub(rate)
	if sideTotal.IsZero() {
		return two.Mul(keep), nil
	}
	return totalPool.Mul(keep).Div(sideTotal), nil
}

// ValidateRate rejects commission rates outside [0, 1).
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: commission rate %s must be in [0,1)", ErrValidation, rate)
	}
	return nil
}

// PayoutFor returns stake × odds floored to the centavo.
func PayoutFor(stake, odds decimal.Decimal) decimal.Decimal {
	return stake.Mul(odds).RoundDown(2)
}

// ──────────────────────────────────────────────────────────────────────────────
// Display formats
// ──────────────────────────────────────────────────────────────────────────────

// Odds carries one price in every format the dashboard renders. Percent is a
// display value only and never feeds payout math.
type Odds struct {
	Decimal  decimal.Decimal `json:"decimal"`
	HongKong float64         `json:"hong_kong"`
	Malay    float64         `json:"malay"`
	Percent  decimal.Decimal `json:"percent"`
}

// NewOdds expands a decimal multiplier into all display formats.
func NewOdds(dec decimal.Decimal) Odds {
	hk := ToHongKong(dec.InexactFloat64())
	return Odds{
		Decimal:  dec.Round(4),
		HongKong: hk,
		Malay:    ToMalay(hk),
		Percent:  DisplayPercent(dec),
	}
}

// DisplayPercent renders a multiplier as a percentage (1.6 → 160).
func DisplayPercent(dec decimal.Decimal) decimal.Decimal {
	return dec.Mul(hundred).Round(2)
}

// ToHongKong converts decimal odds to Hong Kong odds, floored at 0.
func ToHongKong(dec float64) float64 {
	hk := dec - 1
	if hk < 0 {
		return 0
	}
	return hk
}

// FromHongKong converts Hong Kong odds back to decimal odds.
func FromHongKong(hk float64) float64 {
	return hk + 1
}

// ToMalay converts Hong Kong odds to Malay odds. hk == 0 has no Malay price
// and maps to 0.
func ToMalay(hk float64) float64 {
	switch {
	case hk == 0:
		return 0
	case hk >= 1:
		return hk
	default:
		return -1 / hk
	}
}

// FromMalay converts Malay odds back to Hong Kong odds; 0 maps to 0.
func FromMalay(malay float64) float64 {
	switch {
	case malay == 0:
		return 0
	case malay > 0:
		return malay
	default:
		return -1 / malay
	}
}
