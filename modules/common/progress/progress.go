package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// dev setup - allow all origins
		return true
	},
}

// Event is one progress message pushed to connected clients.
type Event struct {
	Type      string `json:"type"` // "log", "stage", "shot", "job"
	JobID     string `json:"jobId,omitempty"`
	Stage     string `json:"stage,omitempty"`
	ShotID    int    `json:"shotId,omitempty"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans pipeline events out to every connected WebSocket client.
type Hub struct {
	clients map[*client]struct{}
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// HandleWS upgrades the request and keeps the connection until the peer
// goes away. Inbound messages are discarded; the stream is one way.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mutex.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()
	log.Printf("✅ Progress client connected (total: %d)", count)

	go c.writePump()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mutex.Lock()
	delete(h.clients, c)
	remaining := len(h.clients)
	h.mutex.Unlock()
	close(c.send)
	log.Printf("👋 Progress client disconnected (remaining: %d)", remaining)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Broadcast sends an event to every connected client. Slow clients are
// skipped rather than blocking the pipeline.
func (h *Hub) Broadcast(event Event) {
	event.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ Failed to marshal progress event: %v", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Log broadcasts a plain log line event.
func (h *Hub) Log(message string) {
	h.Broadcast(Event{Type: "log", Message: message})
}
