package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(nil, nil, nil, nil)
	done := make(chan struct{})
	go h.Run(done)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		close(done)
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, h *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.ConnectedCount() == want }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHub_BroadcastOdds(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, h, url, 1)

	m := &domain.Match{ID: uuid.New(), FightNumber: 7, Status: domain.StatusOpen}
	snap := domain.NewPoolSnapshot(m.ID, domain.SelectionMeron, domain.SelectionWala)
	require.NoError(t, snap.Record(domain.SelectionMeron, domain.SourceUser, decimal.NewFromInt(100)))
	h.BroadcastOdds([]*domain.MatchView{{
		Match: m,
		Pool:  snap,
		Odds:  map[domain.Selection]domain.Odds{domain.SelectionMeron: domain.NewOdds(decimal.RequireFromString("1.92"))},
	}})

	got := read(t, conn)
	assert.Equal(t, string(MsgTypeOddsUpdate), got["type"])
	assert.Equal(t, m.ID.String(), got["event_id"])
	assert.EqualValues(t, 7, got["fight_number"])
	sides, ok := got["sides"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, sides, "meron")
}

func TestHub_EventFilter(t *testing.T) {
	h, url := startHub(t)
	watched, other := uuid.New(), uuid.New()
	conn := dial(t, h, url+"?event="+watched.String(), 1)

	e1, err := events.New(events.EventSettled, "match", other, map[string]string{"n": "1"})
	require.NoError(t, err)
	e2, err := events.New(events.EventSettled, "match", watched, map[string]string{"n": "2"})
	require.NoError(t, err)
	h.ForwardEvent(e1)
	h.ForwardEvent(e2)

	got := read(t, conn)
	assert.Equal(t, string(MsgTypeEventSettled), got["type"])
	assert.Equal(t, watched.String(), got["event_id"])
}

func TestHub_DropsInternalEvents(t *testing.T) {
	e, err := events.New(events.OddsUpdate, "match", uuid.New(), nil)
	require.NoError(t, err)
	_, ok := NewEventMessage(e)
	assert.False(t, ok)
}

func TestHub_RejectsBadEventID(t *testing.T) {
	h, url := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?event=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Zero(t, h.ConnectedCount())
}

func TestSubject(t *testing.T) {
	secret := []byte("ws-secret")
	h := NewHub(secret, nil, nil, nil)
	uid := uuid.New()

	sign := func(typ string, key []byte) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, socketClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uid.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			Type: typ,
		}).SignedString(key)
		require.NoError(t, err)
		return tok
	}

	assert.Equal(t, uid, h.subject(sign("access", secret)))
	assert.Equal(t, uuid.Nil, h.subject(sign("refresh", secret)))
	assert.Equal(t, uuid.Nil, h.subject(sign("access", []byte("other"))))
	assert.Equal(t, uuid.Nil, h.subject("garbage"))
	assert.Equal(t, uuid.Nil, NewHub(nil, nil, nil, nil).subject(sign("access", secret)))
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", origin)
		return r
	}
	assert.True(t, originChecker(nil)(req("https://any.example")))
	assert.True(t, originChecker([]string{"*"})(req("https://any.example")))

	check := originChecker([]string{"https://arena.example"})
	assert.True(t, check(req("https://arena.example")))
	assert.False(t, check(req("https://evil.example")))
}
