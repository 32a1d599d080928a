package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/serialization"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub is a messaging.Sink that streams every republished vehicle state to
// connected WebSocket clients. New clients first receive the latest state.
// A client that cannot keep up is disconnected rather than slowing the
// bridge down.
type Hub struct {
	upgrader   websocket.Upgrader
	codec      serialization.Codec
	logger     *slog.Logger
	bufferSize int

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

var _ messaging.Sink = (*Hub)(nil)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Option configures the Hub
type Option func(*Hub)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithBufferSize sets how many states may queue per client
func WithBufferSize(size int) Option {
	return func(h *Hub) {
		h.bufferSize = size
	}
}

// WithCheckOrigin overrides the upgrade origin check
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

// NewHub creates a hub with no clients
func NewHub(options ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		codec:      serialization.JSONCodec{},
		logger:     slog.Default(),
		bufferSize: 16,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range options {
		opt(h)
	}
	if h.bufferSize < 1 {
		h.bufferSize = 1
	}
	return h
}

// Publish implements messaging.Sink
func (h *Hub) Publish(_ context.Context, state contracts.VehicleState) error {
	data, err := h.codec.Encode(state)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return messaging.ErrClosed
	}

	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", "clientId", c.id)
			h.removeLocked(c)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clientId", c.id, "remoteAddr", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects further publishes
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

// readPump discards client messages and notices disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("websocket client disconnected", "clientId", c.id)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
