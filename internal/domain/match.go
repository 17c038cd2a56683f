// Package domain defines the core business entities and pure settlement math
// for the sabong and karera pari-mutuel betting platform.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Event status machine (shared by sabong matches and karera races)
// ──────────────────────────────────────────────────────────────────────────────

// EventStatus represents the lifecycle state of a match or race.
type EventStatus string

const (
	StatusOpen      EventStatus = "open"      // accepting bets
	StatusLastCall  EventStatus = "last_call" // grace window, still accepting
	StatusClosed    EventStatus = "closed"    // betting over, pool frozen
	StatusOngoing   EventStatus = "ongoing"   // fight/race in progress
	StatusFinished  EventStatus = "finished"  // winner declared, payouts applied
	StatusCancelled EventStatus = "cancelled" // voided, every pending bet refunded
)

// transitions lists the allowed forward moves. Cancellation is handled
// separately because it is reachable from every non-terminal state.
var transitions = map[EventStatus][]EventStatus{
	StatusOpen:     {StatusLastCall, StatusClosed},
	StatusLastCall: {StatusClosed},
	StatusClosed:   {StatusOngoing, StatusFinished},
	StatusOngoing:  {StatusFinished},
}

// IsValid returns true for a recognised status.
func (s EventStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusLastCall, StatusClosed, StatusOngoing, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// AcceptsBets is true only while the betting window is open.
func (s EventStatus) AcceptsBets() bool {
	return s == StatusOpen || s == StatusLastCall
}

// IsTerminal is true for finished and cancelled events.
func (s EventStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanSettle is true when a winner may be declared.
func (s EventStatus) CanSettle() bool {
	return s == StatusClosed || s == StatusOngoing
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	if next == StatusCancelled {
		return !s.IsTerminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidStateTransition with context when the
// move is not allowed.
func CheckTransition(from, to EventStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sabong selections
// ──────────────────────────────────────────────────────────────────────────────

// Selection is an outcome key a bet is placed on. Sabong uses meron/wala/draw;
// karera win pools use the horse number as the key.
type Selection string

const (
	SelectionMeron Selection = "meron"
	SelectionWala  Selection = "wala"
	SelectionDraw  Selection = "draw"
)

// SabongSelections is the fixed outcome set of a cockfight.
var SabongSelections = []Selection{SelectionMeron, SelectionWala, SelectionDraw}

// IsSabong returns true for meron, wala and draw.
func (s Selection) IsSabong() bool {
	return s == SelectionMeron || s == SelectionWala || s == SelectionDraw
}

// ──────────────────────────────────────────────────────────────────────────────
// Match
// ──────────────────────────────────────────────────────────────────────────────

// Match is a single cockfight with its betting lifecycle.
type Match struct {
	ID          uuid.UUID   `json:"id"           db:"id"`
	FightNumber int         `json:"fight_number" db:"fight_number"`
	MeronName   string      `json:"meron_name"   db:"meron_name"`
	WalaName    string      `json:"wala_name"    db:"wala_name"`
	Status      EventStatus `json:"status"       db:"status"`
	Winner      *Selection  `json:"winner"       db:"winner"`
	LastCallAt  *time.Time  `json:"last_call_at" db:"last_call_at"`
	ClosedAt    *time.Time  `json:"closed_at"    db:"closed_at"`
	FinishedAt  *time.Time  `json:"finished_at"  db:"finished_at"`
	CreatedBy   *uuid.UUID  `json:"created_by"   db:"created_by"`
	CreatedAt   time.Time   `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"   db:"updated_at"`
}

// AcceptsBets returns true while the match is in open or last_call.
func (m *Match) AcceptsBets() bool {
	return m.Status.AcceptsBets()
}

// LastCallExpired reports whether the last-call grace window has elapsed.
func (m *Match) LastCallExpired(window time.Duration, now time.Time) bool {
	if m.Status != StatusLastCall || m.LastCallAt == nil {
		return false
	}
	return !now.Before(m.LastCallAt.Add(window))
}

// MatchView is the read model for list/detail endpoints and WS broadcasts:
// the match plus its live pool and derived odds.
type MatchView struct {
	Match *Match             `json:"match"`
	Pool  *PoolSnapshot      `json:"pool"`
	Odds  map[Selection]Odds `json:"odds"`
}
