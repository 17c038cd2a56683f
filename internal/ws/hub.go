package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/events"
	"github.com/tayaan/arena/internal/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeWait   = 10 * time.Second
	pingEvery   = 30 * time.Second
	readWait    = pingEvery + 5*time.Second
	readLimit   = 512 // the feed is push-only
	clientQueue = 256
	hubQueue    = 512
)

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client is one subscriber socket. userID is uuid.Nil for spectators; watch
// is uuid.Nil when the client follows every match and race.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	watch  uuid.UUID
}

func (c *Client) wants(eventID uuid.UUID) bool {
	return c.watch == uuid.Nil || eventID == uuid.Nil || c.watch == eventID
}

// outbound is a message addressed to the watchers of one event.
type outbound struct {
	eventID uuid.UUID
	data    []byte
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// Hub owns the odds feed subscribers. The client set is only mutated by Run,
// which must be running before ServeWs accepts connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	// Empty secret: every socket is a spectator.
	jwtSecret []byte
	upgrader  websocket.Upgrader

	log     *zap.Logger
	metrics *metrics.Collectors
}

// NewHub builds a hub. An empty origin list accepts any origin.
func NewHub(jwtSecret []byte, allowedOrigins []string, log *zap.Logger, m *metrics.Collectors) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, hubQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		jwtSecret:  jwtSecret,
		log:        log.Named("ws"),
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run serialises joins, leaves and fan-out until done closes, then drops
// every client.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			close(h.stopped)
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.metrics.ClientConnected(1)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// drop removes c; callers hold h.mu.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.metrics.ClientConnected(-1)
}

// fanOut queues msg for every interested client. A slow client misses the
// message rather than stalling the loop.
func (h *Hub) fanOut(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(msg.eventID) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
		}
	}
}

// ConnectedCount reports live sockets.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// Upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades the request and subscribes the socket. ?token= carries an
// access token identifying the bettor; ?event=<id> narrows the feed to one
// match or race.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var watch uuid.UUID
	if ev := r.URL.Query().Get("event"); ev != "" {
		id, err := uuid.Parse(ev)
		if err != nil {
			http.Error(w, "invalid event id", http.StatusBadRequest)
			return
		}
		watch = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientQueue),
		userID: h.subject(r.URL.Query().Get("token")),
		watch:  watch,
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

type socketClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// subject resolves an access token to its user id. Any failure, including a
// refresh token, yields a spectator.
func (h *Hub) subject(raw string) uuid.UUID {
	if raw == "" || len(h.jwtSecret) == 0 {
		return uuid.Nil
	}
	var claims socketClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Type != "access" {
		return uuid.Nil
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump is the only writer on conn. A closed send channel means the hub
// dropped the client.
func (c *Client) writePump() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, open := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if c.conn.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if c.conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// readPump reads frames until the connection drops, then unregisters the
// client. The protocol is push-only; inbound frames other than pongs are
// discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(readWait)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected close", zap.Stringer("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Broadcast helpers
// ──────────────────────────────────────────────────────────────────────────────

// BroadcastOdds pushes one OddsUpdateMessage per live match.
func (h *Hub) BroadcastOdds(views []*domain.MatchView) {
	for _, v := range views {
		if v == nil || v.Match == nil {
			continue
		}
		h.broadcastJSON(v.Match.ID, NewOddsUpdate(v))
	}
}

// ForwardEvent relays a bus event to the clients watching it.
func (h *Hub) ForwardEvent(e events.Event) {
	msg, ok := NewEventMessage(e)
	if !ok {
		return
	}
	h.broadcastJSON(e.EventID, msg)
}

// broadcastJSON never blocks the caller; a full hub queue drops the message.
func (h *Hub) broadcastJSON(eventID uuid.UUID, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{eventID: eventID, data: data}:
	default:
		h.log.Warn("broadcast channel full, message dropped")
	}
}
