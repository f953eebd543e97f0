package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/olymp/arena/internal/game"
	"github.com/redis/go-redis/v9"
)

// Close codes sent before dropping a rejected connection
const (
	CloseForbidden = 4000
	CloseNotFound  = 4004
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 4096
	sendBuffer = 64
)

// Client is one open websocket bound to a (match, player) pair
type Client struct {
	id       string
	conn     *websocket.Conn
	matchID  int64
	playerID int64
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	session  *Session
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// sendJSON queues v for this client only
func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] marshal for client %s: %v", c.id, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[WS] send buffer full for player %d in match %d, dropping message", c.playerID, c.matchID)
	}
}

type checkKey struct {
	matchID  int64
	playerID int64
}

// Hub tracks the sockets open on this instance, grouped by match, and the
// pending technical-loss checks for players who dropped out.
type Hub struct {
	engine     *game.Engine
	clock      clockwork.Clock
	upgrader   websocket.Upgrader
	rdb        *redis.Client
	instanceID string

	mu      sync.RWMutex
	rooms   map[int64]map[string]*Client
	pending map[checkKey]clockwork.Timer
}

// NewHub creates a hub and registers it as the engine's broadcaster.
// checkOrigin may be nil to accept any origin.
func NewHub(engine *game.Engine, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	h := &Hub{
		engine: engine,
		clock:  engine.Clock(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		instanceID: uuid.NewString(),
		rooms:      make(map[int64]map[string]*Client),
		pending:    make(map[checkKey]clockwork.Timer),
	}
	engine.SetBroadcaster(h)
	return h
}

// ServeWS upgrades the request and runs a session for playerID in matchID.
// playerID is 0 when the request carried no valid credentials.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, matchID, playerID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}

	if playerID == 0 {
		reject(conn, CloseForbidden, "authentication required")
		return
	}
	if _, err := h.engine.Authorize(r.Context(), matchID, playerID); err != nil {
		switch {
		case errors.Is(err, game.ErrNotFound):
			reject(conn, CloseNotFound, "match not found")
		case errors.Is(err, game.ErrForbidden):
			reject(conn, CloseForbidden, "not a participant")
		default:
			log.Printf("[WS] authorize match %d player %d: %v", matchID, playerID, err)
			reject(conn, websocket.CloseInternalServerErr, "unavailable")
		}
		return
	}

	c := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		matchID:  matchID,
		playerID: playerID,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	c.session = newSession(h, c)

	go c.writePump()
	c.session.onConnect(context.Background())
	go h.readPump(c)
}

func reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Printf("[WS] write close %d: %v", code, err)
	}
	conn.Close()
}

// register adds c to its match room. Another socket of the same player in
// the same match is replaced and returned so the caller can close it.
func (h *Hub) register(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.matchID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.matchID] = room
	}
	var replaced *Client
	for id, other := range room {
		if other.playerID == c.playerID {
			replaced = other
			delete(room, id)
		}
	}
	room[c.id] = c
	log.Printf("[WS] player %d joined match %d (room_size=%d)", c.playerID, c.matchID, len(room))
	return replaced
}

// unregister removes c and reports whether it was still the player's
// current socket. A replaced socket returns false.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.matchID]
	if !ok {
		return false
	}
	if _, ok := room[c.id]; !ok {
		return false
	}
	delete(room, c.id)
	if len(room) == 0 {
		delete(h.rooms, c.matchID)
	}
	log.Printf("[WS] player %d left match %d", c.playerID, c.matchID)
	return true
}

// BroadcastState delivers st to every socket of the match on this
// instance and, with Redis configured, to the other instances.
func (h *Hub) BroadcastState(matchID int64, st *game.State) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("[WS] marshal state for match %d: %v", matchID, err)
		return
	}
	h.deliver(matchID, data, st)
	h.publish(matchID, data)
}

func (h *Hub) deliver(matchID int64, data []byte, st *game.State) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[matchID]))
	for _, c := range h.rooms[matchID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.session.observe(st)
		c.enqueue(data)
	}
}

// scheduleTechnicalCheck arms the technical-loss check for a player who
// just disconnected, replacing any earlier check for the same seat.
func (h *Hub) scheduleTechnicalCheck(matchID, playerID int64, after time.Duration) {
	key := checkKey{matchID, playerID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.pending[key]; ok {
		t.Stop()
	}

	var timer clockwork.Timer
	timer = h.clock.AfterFunc(after, func() {
		h.mu.Lock()
		if h.pending[key] != timer {
			h.mu.Unlock()
			return
		}
		delete(h.pending, key)
		h.mu.Unlock()

		ctx := context.Background()
		changed, err := h.engine.MarkTechnical(ctx, matchID, playerID)
		if err != nil {
			log.Printf("[WS] technical check match %d player %d: %v", matchID, playerID, err)
			return
		}
		if changed {
			h.engine.Publish(ctx, matchID)
		}
	})
	h.pending[key] = timer
}

func (h *Hub) cancelTechnicalCheck(matchID, playerID int64) {
	key := checkKey{matchID, playerID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.pending[key]; ok {
		t.Stop()
		delete(h.pending, key)
		log.Printf("[WS] player %d back in match %d, technical check cancelled", playerID, matchID)
	}
}

func (h *Hub) hasTechnicalCheck(matchID, playerID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.pending[checkKey{matchID, playerID}]
	return ok
}

// submitMessage is the only client->server message
type submitMessage struct {
	Type   string `json:"type"`
	Answer string `json:"answer"`
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		c.session.onDisconnect(context.Background())
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for player %d: %v", c.playerID, err)
			}
			return
		}

		var msg submitMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "submit_answer" {
			c.session.submitAnswer(context.Background(), msg.Answer)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for player %d: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
