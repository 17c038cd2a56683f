package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InjectionLog records every house liquidity injection into a pool.
// It maps to the pool_injections table.
type InjectionLog struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	EventID    uuid.UUID       `json:"event_id"    db:"event_id"`
	EventKind  EventKind       `json:"event_kind"  db:"event_kind"`
	Selection  Selection       `json:"selection"   db:"selection"` // which side was funded
	Amount     decimal.Decimal `json:"amount"      db:"amount"`
	BetID      uuid.UUID       `json:"bet_id"      db:"bet_id"`
	InjectedBy uuid.UUID       `json:"injected_by" db:"injected_by"`
	Reason     string          `json:"reason"      db:"reason"` // logged for audit
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
}

// InjectionStats summarises house liquidity across events.
type InjectionStats struct {
	TotalInjected decimal.Decimal `json:"total_injected" db:"total_injected"`
	EventCount    int             `json:"event_count"    db:"event_count"`
	Count         int             `json:"count"          db:"count"`
}
