package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestNew_MarshalsPayload(t *testing.T) {
	id := uuid.New()
	e, err := New(EventSettled, "match", id, map[string]int{"won": 3})
	require.NoError(t, err)

	assert.Equal(t, EventSettled, e.Type)
	assert.Equal(t, id, e.EventID)
	assert.JSONEq(t, `{"won":3}`, string(e.Payload))

	var round Event
	b, _ := json.Marshal(e)
	require.NoError(t, json.Unmarshal(b, &round))
	assert.Equal(t, e.Type, round.Type)
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("broker down")}
	f := Fanout{ok, nil, bad}

	e, _ := New(BetPlaced, "match", uuid.New(), nil)
	err := f.Publish(context.Background(), e)

	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
	assert.ErrorContains(t, err, "broker down")
}
