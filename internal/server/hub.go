package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// Event is a state-change notification pushed to observers.
type Event struct {
	Type      string    `json:"type"`
	Subsystem string    `json:"subsystem,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher forwards encoded events to an external bus. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type client struct {
	conn *websocket.Conn
	addr string
	send chan []byte
}

// Hub fans events out to WebSocket clients and an optional Publisher.
// Broadcast never blocks: a client whose buffer is full misses the event.
type Hub struct {
	clients   map[*client]struct{}
	publisher Publisher
	subject   string
	upgrader  websocket.Upgrader
	log       *logrus.Logger
	mu        sync.RWMutex
}

// NewHub creates a hub. allowOrigin decides WebSocket upgrades; nil allows all.
func NewHub(log *logrus.Logger, allowOrigin func(origin string) bool) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin == nil || allowOrigin(origin)
		},
	}
	return h
}

// SetPublisher attaches an external bus. Events go to subject.<event type>.
func (h *Hub) SetPublisher(p Publisher, subject string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
	h.subject = subject
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every client and the publisher.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("type", ev.Type).Error("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.WithField("remote_addr", c.addr).Debug("Dropping event for slow client")
		}
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(h.subject+"."+ev.Type, data); err != nil {
			h.log.WithError(err).WithField("type", ev.Type).Warn("Failed to publish event")
		}
	}
}

// ServeWS upgrades the request and streams events until the client goes away.
// Text frames from the client are acknowledged.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("remote_addr", r.RemoteAddr).Error("Failed to upgrade to WebSocket")
		return
	}

	c := &client{conn: conn, addr: r.RemoteAddr, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.WithField("remote_addr", r.RemoteAddr).Info("WebSocket client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ack, _ := json.Marshal(map[string]string{"type": "ack", "message": "received"})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("WebSocket read failed")
			}
			return
		}
		h.mu.RLock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- ack:
			default:
			}
		}
		h.mu.RUnlock()
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
