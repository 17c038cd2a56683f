// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients.
package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeOddsUpdate     MsgType = "odds_update"
	MsgTypeBetPlaced      MsgType = "bet_placed"
	MsgTypeEventStatus    MsgType = "event_status"
	MsgTypeEventSettled   MsgType = "event_settled"
	MsgTypeEventCancelled MsgType = "event_cancelled"
	MsgTypeHorseScratched MsgType = "horse_scratched"
)

// ──────────────────────────────────────────────────────────────────────────────
// OddsUpdateMessage: one per live match per broadcast tick
// ──────────────────────────────────────────────────────────────────────────────

// SideState is the pool and price of one selection.
type SideState struct {
	Total decimal.Decimal `json:"total"`
	Odds  domain.Odds     `json:"odds"`
}

// OddsUpdateMessage carries the live pool and odds of one match.
type OddsUpdateMessage struct {
	Type        MsgType                        `json:"type"`
	EventID     uuid.UUID                      `json:"event_id"`
	FightNumber int                            `json:"fight_number"`
	Status      domain.EventStatus             `json:"status"`
	PoolTotal   decimal.Decimal                `json:"pool_total"`
	Sides       map[domain.Selection]SideState `json:"sides"`
	Timestamp   time.Time                      `json:"timestamp"`
}

// NewOddsUpdate flattens a match view for the wire.
func NewOddsUpdate(v *domain.MatchView) OddsUpdateMessage {
	msg := OddsUpdateMessage{
		Type:        MsgTypeOddsUpdate,
		EventID:     v.Match.ID,
		FightNumber: v.Match.FightNumber,
		Status:      v.Match.Status,
		Sides:       make(map[domain.Selection]SideState, len(v.Odds)),
		Timestamp:   time.Now().UTC(),
	}
	if v.Pool != nil {
		msg.PoolTotal = v.Pool.GrandTotal()
	}
	for sel, o := range v.Odds {
		st := SideState{Odds: o}
		if v.Pool != nil {
			st.Total = v.Pool.Totals(sel).Total
		}
		msg.Sides[sel] = st
	}
	return msg
}

// ──────────────────────────────────────────────────────────────────────────────
// EventMessage: domain events relayed from the bus
// ──────────────────────────────────────────────────────────────────────────────

// EventMessage relays bet, status, settlement and scratch events. Payload is
// the event body as published.
type EventMessage struct {
	Type      MsgType         `json:"type"`
	EventID   uuid.UUID       `json:"event_id"`
	EventKind string          `json:"event_kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

var eventTypes = map[events.Type]MsgType{
	events.BetPlaced:      MsgTypeBetPlaced,
	events.EventStatus:    MsgTypeEventStatus,
	events.EventSettled:   MsgTypeEventSettled,
	events.EventCancelled: MsgTypeEventCancelled,
	events.HorseScratched: MsgTypeHorseScratched,
}

// NewEventMessage maps a bus event to its client message. ok is false for
// event types clients do not receive.
func NewEventMessage(e events.Event) (EventMessage, bool) {
	t, ok := eventTypes[e.Type]
	if !ok {
		return EventMessage{}, false
	}
	return EventMessage{
		Type:      t,
		EventID:   e.EventID,
		EventKind: e.EventKind,
		Payload:   e.Payload,
		Timestamp: e.At,
	}, true
}
