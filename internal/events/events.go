// Package events publishes domain events after a transaction commits: to
// kafka for downstream consumers and to a redis channel so every API process
// can push them to its websocket clients.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	BetPlaced      Type = "bet_placed"
	EventStatus    Type = "event_status"
	EventSettled   Type = "event_settled"
	EventCancelled Type = "event_cancelled"
	HorseScratched Type = "horse_scratched"
	OddsUpdate     Type = "odds_update"
)

// Event is the envelope written to every sink.
type Event struct {
	Type      Type            `json:"type"`
	EventID   uuid.UUID       `json:"event_id"`
	EventKind string          `json:"event_kind"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}

// New marshals payload into an event envelope.
func New(t Type, kind string, eventID uuid.UUID, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events.New: %w", err)
	}
	return Event{Type: t, EventID: eventID, EventKind: kind, Payload: b, At: time.Now().UTC()}, nil
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every sink and joins the failures.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
