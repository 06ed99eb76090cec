package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"activestats/internal/core/domain"
)

const (
	MessageSnapshot = "snapshot"
	MessageRedirect = "redirect"
)

const (
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second
	// sendBuffer is how many messages a client may fall behind before it is dropped.
	sendBuffer = 32
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type       string              `json:"type"`
	Snapshot   *domain.Snapshot    `json:"snapshot,omitempty"`
	Enablement []domain.Enablement `json:"enablement,omitempty"`
	Location   string              `json:"location,omitempty"`
}

// client owns one connection. Only its writer goroutine writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writeLoop(logger *slog.Logger) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Warn("failed to send to websocket client", "error", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub fans messages out to every connected websocket client. The newest
// message of each type is kept and replayed to clients as they connect.
// The hub loop never touches a socket; a client that falls behind is dropped.
type Hub struct {
	clients    map[*websocket.Conn]*client
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger

	// mu guards clients for Len; only the hub loop mutates it.
	mu       sync.Mutex
	retained map[string][]byte
	order    []string
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan Message, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		retained:   make(map[string][]byte),
	}
}

// Start runs the hub loop in the background until Stop is called.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn, c := range h.clients {
				close(c.send)
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
			for _, typ := range h.order {
				c.send <- h.retained[typ]
			}
			go c.writeLoop(h.logger)
			h.mu.Lock()
			h.clients[conn] = c
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "clients", count)

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to encode message", "type", msg.Type, "error", err)
				continue
			}
			if _, ok := h.retained[msg.Type]; !ok {
				h.order = append(h.order, msg.Type)
			}
			h.retained[msg.Type] = data

			for conn, c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("websocket client too slow, dropping it")
					h.drop(conn)
				}
			}
		}
	}
}

// drop removes a client and stops its writer, which closes the connection.
func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("websocket client disconnected", "clients", count)
	}
}

// Stop disconnects every client and ends the hub loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Register adds a client. After this call only the hub writes to conn.
func (h *Hub) Register(conn *websocket.Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
