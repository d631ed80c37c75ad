// Package ws mirrors the live event stream over WebSocket for clients that
// prefer a bidirectional transport (zbxstreamctl watch among them). SSE
// remains the canonical stream; this hub carries the same envelopes as JSON
// text messages plus daemon log lines, and handles ping/pong keepalives so
// stale connections get cleaned up.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zbx-rtx/streamd/internal/ring"
)

// Message is the wire shape of every WebSocket text message.
type Message struct {
	Type     string         `json:"type"`               // "event" or "log"
	TS       string         `json:"ts"`                 // RFC 3339 nano
	Event    string         `json:"event,omitempty"`    // zabbix.<family>
	Envelope *ring.Envelope `json:"envelope,omitempty"` // on "event"
	Level    string         `json:"level,omitempty"`    // on "log"
	Message  string         `json:"message,omitempty"`  // on "log"
}

// Hub manages WebSocket connections and fans broadcast messages out to all
// of them. Register, unregister, and broadcast all go through channels.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	upgrader   websocket.Upgrader
}

// NewHub allocates a hub. Call Run in a goroutine to start the loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run processes registrations, broadcasts, and keepalive pings in a single
// select loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.Close()
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			delete(h.clients, c)
			c.Close()

		case msg := <-h.broadcast:
			for c := range h.clients {
				c.SetWriteDeadline(time.Now().Add(3 * time.Second))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					delete(h.clients, c)
					c.Close()
				}
			}

		case <-ping.C:
			for c := range h.clients {
				c.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					delete(h.clients, c)
					c.Close()
				}
			}
		}
	}
}

// Handler upgrades incoming requests and registers the connections. A read
// pump per connection services pongs and detects disconnects.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastEnvelope queues one exported record for delivery. If the
// broadcast channel is full the message is dropped rather than blocking the
// caller; the SSE path and ring replay stay authoritative.
func (h *Hub) BroadcastEnvelope(event string, env ring.Envelope) {
	h.send(Message{
		Type:     "event",
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
		Event:    event,
		Envelope: &env,
	})
}

// BroadcastLog queues a daemon log line for delivery.
func (h *Hub) BroadcastLog(level, message string) {
	h.send(Message{
		Type:    "log",
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Level:   level,
		Message: message,
	})
}

func (h *Hub) send(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
	}
}
