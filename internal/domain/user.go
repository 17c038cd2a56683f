package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole places an account in the agent hierarchy.
type UserRole string

const (
	RoleAdmin       UserRole = "admin"        // full operator access
	RoleMasterAgent UserRole = "master_agent" // manages agents
	RoleAgent       UserRole = "agent"        // manages loaders and players
	RoleLoader      UserRole = "loader"       // loads player balances
	RoleUser        UserRole = "user"         // bettor
)

var roleRank = map[UserRole]int{
	RoleUser:        1,
	RoleLoader:      2,
	RoleAgent:       3,
	RoleMasterAgent: 4,
	RoleAdmin:       5,
}

// IsValid returns true for a recognised role.
func (r UserRole) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the hierarchy level; unknown roles rank 0.
func (r UserRole) Rank() int {
	return roleRank[r]
}

// Outranks reports whether r sits strictly above other.
func (r UserRole) Outranks(other UserRole) bool {
	return r.Rank() > other.Rank()
}

// CanAccessBackoffice returns true for every role above a plain bettor.
func (r UserRole) CanAccessBackoffice() bool {
	return r.Rank() > RoleUser.Rank()
}

// IsAdmin returns true only for the full admin role.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ──────────────────────────────────────────────────────────────────────────────
// Profile
// ──────────────────────────────────────────────────────────────────────────────

// Profile is an account together with its wallet balance. The balance column
// only changes alongside a Transaction row.
type Profile struct {
	ID           uuid.UUID       `json:"id"          db:"id"`
	Username     string          `json:"username"    db:"username"`
	PasswordHash string          `json:"-"           db:"password_hash"` // never serialised
	Role         UserRole        `json:"role"        db:"role"`
	Balance      decimal.Decimal `json:"balance"     db:"balance"`
	ReferrerID   *uuid.UUID      `json:"referrer_id" db:"referrer_id"`
	IsBot        bool            `json:"is_bot"      db:"is_bot"`
	IsBanned     bool            `json:"is_banned"   db:"is_banned"`
	CreatedAt    time.Time       `json:"created_at"  db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"  db:"updated_at"`
}

// PublicProfile returns a view safe to expose via API (no password hash).
type PublicProfile struct {
	ID         uuid.UUID       `json:"id"`
	Username   string          `json:"username"`
	Role       UserRole        `json:"role"`
	Balance    decimal.Decimal `json:"balance"`
	ReferrerID *uuid.UUID      `json:"referrer_id,omitempty"`
	IsBot      bool            `json:"is_bot"`
	IsBanned   bool            `json:"is_banned"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ToPublicProfile converts a Profile to its public-safe representation.
func (p *Profile) ToPublicProfile() PublicProfile {
	return PublicProfile{
		ID:         p.ID,
		Username:   p.Username,
		Role:       p.Role,
		Balance:    p.Balance,
		ReferrerID: p.ReferrerID,
		IsBot:      p.IsBot,
		IsBanned:   p.IsBanned,
		CreatedAt:  p.CreatedAt,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxType enumerates wallet transaction types for auditing.
type TxType string

const (
	TxLoad       TxType = "load"       // admin/agent credit
	TxWithdraw   TxType = "withdraw"   // admin/agent debit
	TxTransfer   TxType = "transfer"   // upline -> downline move
	TxBet        TxType = "bet"        // stake debit
	TxPayout     TxType = "payout"     // winning bet credit
	TxRefund     TxType = "refund"     // cancelled/scratched stake returned
	TxInjection  TxType = "injection"  // house liquidity debit
	TxCommission TxType = "commission" // plasada booked to the house
	TxRetained   TxType = "retained"   // breakage and unbacked pools kept by the house
)

// Transaction is an immutable ledger record. Settlement rows carry the
// balance snapshot; admin audit rows carry sender and receiver.
type Transaction struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	UserID        uuid.UUID       `json:"user_id"        db:"user_id"`
	Type          TxType          `json:"type"           db:"type"`
	Amount        decimal.Decimal `json:"amount"         db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"  db:"balance_after"`
	SenderID      *uuid.UUID      `json:"sender_id"      db:"sender_id"`
	ReceiverID    *uuid.UUID      `json:"receiver_id"    db:"receiver_id"`
	RefID         *uuid.UUID      `json:"ref_id"         db:"ref_id"` // bet, match or race id
	Description   string          `json:"description"    db:"description"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// House ledger
// ──────────────────────────────────────────────────────────────────────────────

// EventKind distinguishes sabong matches from karera races in shared tables.
type EventKind string

const (
	EventKindMatch EventKind = "match"
	EventKindRace  EventKind = "race"
)

// HouseLedgerEntry books the house result of one settled event.
type HouseLedgerEntry struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	EventID    uuid.UUID       `json:"event_id"    db:"event_id"`
	EventKind  EventKind       `json:"event_kind"  db:"event_kind"`
	GrossPool  decimal.Decimal `json:"gross_pool"  db:"gross_pool"`
	Commission decimal.Decimal `json:"commission"  db:"commission"`
	PaidOut    decimal.Decimal `json:"paid_out"    db:"paid_out"`
	Refunded   decimal.Decimal `json:"refunded"    db:"refunded"`
	Retained   decimal.Decimal `json:"retained"    db:"retained"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
}
