package provider

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"vigil-go/internal/metrics"
)

// Websocket message type for text frames, per RFC 6455.
const textMessage = 1

// Conn is the subset of a websocket connection the hub needs. Satisfied by
// *websocket.Conn from both the fasthttp and gorilla implementations.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// clientBufSize is the per-client outbound buffer depth. A client that falls
// this far behind is disconnected rather than allowed to stall the hub.
const clientBufSize = 32

// Client is one registered websocket connection, owned by a single user.
type Client struct {
	userID string
	conn   Conn
	send   chan []byte
	hub    *Hub
	once   sync.Once
}

// wsEnvelope is the frame format pushed to clients.
type wsEnvelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans real-time notification events out to connected websocket clients,
// keyed by user. Safe for concurrent use.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	closed  bool
}

// NewHub creates a websocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a connection for a user and starts its write pump. The
// caller keeps ownership of the read side and must call Unregister when the
// connection drops.
func (h *Hub) Register(userID string, conn Conn) *Client {
	c := &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, clientBufSize),
		hub:    h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return c
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	go c.writePump()

	h.logger.Debug("websocket client registered", "user_id", userID)
	return c
}

// Unregister removes a client and closes its connection. Safe to call more
// than once. The send channel is closed under the exclusive lock so it can
// never race a concurrent SendToUser, which sends under the read lock.
func (h *Hub) Unregister(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.clients[c.userID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
		}
		close(c.send)
		h.mu.Unlock()

		c.conn.Close()
		metrics.WebsocketConnections.Dec()
		h.logger.Debug("websocket client unregistered", "user_id", c.userID)
	})
}

// writePump drains the client's send buffer onto the connection. A write
// error tears the client down.
func (c *Client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(textMessage, msg); err != nil {
			c.hub.Unregister(c)
			return
		}
	}
}

// SendToUser pushes an event to all of a user's connections. Clients whose
// buffer is full are disconnected.
func (h *Hub) SendToUser(userID, eventName string, data any) {
	payload, err := json.Marshal(wsEnvelope{
		Event:     eventName,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("websocket client too slow, disconnecting", "user_id", userID)
		h.Unregister(c)
	}
}

// ConnectionCount returns how many connections a user currently has.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.Unregister(c)
	}
}
