package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// Envelope is the wire shape of one realtime event.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected websocket client. Delivery is
// fire-and-forget: a slow or disconnected client misses events and is
// expected to reconcile through the read API on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish broadcasts one event to all current subscribers. It never
// blocks and never reports failure to the caller; a client whose buffer
// is full simply misses the event.
func (h *Hub) Publish(event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Errorf("realtime: marshalling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warnf("realtime: client %s buffer full, dropping %s event", c.id, event)
		}
	}
}

// Register attaches one upgraded connection to the hub and starts its
// pumps. Returns once the reader is running; the connection is owned by
// the hub from here on.
func (h *Hub) Register(conn *websocket.Conn) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	log.Infof("realtime: client %s connected (%d active)", c.id, count)

	go h.writePump(c)
	go h.readPump(c)
}

// ClientCount reports the number of attached subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.conn.Close()
		log.Infof("realtime: client %s disconnected (%d active)", c.id, count)
	}
}

func (h *Hub) writePump(c *client) {
	defer h.remove(c)

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump only exists to observe the close handshake; inbound frames
// carry no meaning on this channel.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
