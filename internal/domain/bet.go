package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// BetStatus represents the current state of a wager. A bet leaves pending
// exactly once.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"   // in play
	BetStatusWon       BetStatus = "won"       // selection matched the declared winner
	BetStatusLost      BetStatus = "lost"      // selection lost
	BetStatusCancelled BetStatus = "cancelled" // refunded (event cancelled, draw side-refund, scratch)
)

// IsFinal returns true once the bet has been settled or refunded.
func (s BetStatus) IsFinal() bool {
	return s != BetStatusPending
}

// ──────────────────────────────────────────────────────────────────────────────
// Bet
// ──────────────────────────────────────────────────────────────────────────────

// Bet is a single sabong wager on one match selection.
type Bet struct {
	ID        uuid.UUID        `json:"id"         db:"id"`
	UserID    uuid.UUID        `json:"user_id"    db:"user_id"`
	MatchID   uuid.UUID        `json:"match_id"   db:"match_id"`
	Selection Selection        `json:"selection"  db:"selection"`
	Amount    decimal.Decimal  `json:"amount"     db:"amount"`
	Source    StakeSource      `json:"source"     db:"source"`
	Status    BetStatus        `json:"status"     db:"status"`
	Payout    *decimal.Decimal `json:"payout"     db:"payout"`
	PlacedAt  time.Time        `json:"placed_at"  db:"placed_at"`
	SettledAt *time.Time       `json:"settled_at" db:"settled_at"`
}

// IsPending returns true while the bet awaits settlement.
func (b *Bet) IsPending() bool {
	return !b.Status.IsFinal()
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBetRequest
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBetRequest carries the inputs for placing a bet of any source.
type PlaceBetRequest struct {
	UserID    uuid.UUID
	MatchID   uuid.UUID
	Selection Selection
	Amount    decimal.Decimal
	Source    StakeSource
}

// Validate rejects malformed requests before any state is touched.
func (r PlaceBetRequest) Validate(minStake decimal.Decimal) error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if r.MatchID == uuid.Nil {
		return fmt.Errorf("%w: match id is required", ErrValidation)
	}
	if !r.Selection.IsSabong() {
		return fmt.Errorf("%w: unknown selection %q", ErrValidation, r.Selection)
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
	return nil
}

// BetResponse is the API view of a bet.
type BetResponse struct {
	ID        uuid.UUID        `json:"id"`
	MatchID   uuid.UUID        `json:"match_id"`
	Selection Selection        `json:"selection"`
	Amount    decimal.Decimal  `json:"amount"`
	Source    StakeSource      `json:"source"`
	Status    BetStatus        `json:"status"`
	Payout    *decimal.Decimal `json:"payout,omitempty"`
	PlacedAt  time.Time        `json:"placed_at"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// ToResponse converts a Bet to its API response form.
func (b *Bet) ToResponse() BetResponse {
	return BetResponse{
		ID:        b.ID,
		MatchID:   b.MatchID,
		Selection: b.Selection,
		Amount:    b.Amount,
		Source:    b.Source,
		Status:    b.Status,
		Payout:    b.Payout,
		PlacedAt:  b.PlacedAt,
		SettledAt: b.SettledAt,
	}
}
