// Package sse fans framed Server-Sent Events out to any number of connected
// clients. Registration, unregistration, and broadcast all flow through one
// select loop; each client gets its own writer goroutine so one stalled
// connection never blocks the rest. A client whose pending outbound bytes
// cross the drop threshold loses frames instead of queue space — the ring
// buffer and sinceId replay are the recovery path.
package sse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// clientQueue is the per-client frame channel depth. The byte threshold is
// the real backpressure bound; this only has to be deep enough that it never
// binds first for ordinary frame sizes.
const clientQueue = 1024

// Frame renders one SSE record. The id line appears only for id > 0, the
// event line only for a non-empty name. The payload must be a single line.
func Frame(event string, id uint64, payload []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(event) + len(payload) + 32)
	if id > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatUint(id, 10))
		b.WriteByte('\n')
	}
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")
	return b.Bytes()
}

// Client is one connected event-stream consumer. Frames are queued and
// written by a dedicated goroutine; Pending reports the bytes queued but not
// yet written out.
type Client struct {
	w     io.Writer
	flush func()

	frames  chan []byte
	pending atomic.Int64
	closed  atomic.Bool
	quit    chan struct{}
	done    chan struct{}
	endOnce sync.Once
}

// NewClient wraps a writer (typically an http.ResponseWriter) and starts the
// write pump. flush may be nil.
func NewClient(w io.Writer, flush func()) *Client {
	c := &Client{
		w:      w,
		flush:  flush,
		frames: make(chan []byte, clientQueue),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Client) writeLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case frame := <-c.frames:
			_, err := c.w.Write(frame)
			if err == nil && c.flush != nil {
				c.flush()
			}
			c.pending.Add(-int64(len(frame)))
			if err != nil {
				c.closed.Store(true)
				return
			}
		}
	}
}

// enqueue queues one frame, reporting false when the client is closed or its
// queue is full.
func (c *Client) enqueue(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.pending.Add(int64(len(frame)))
	select {
	case c.frames <- frame:
		return true
	default:
		c.pending.Add(-int64(len(frame)))
		return false
	}
}

// Pending returns the bytes currently queued toward this client.
func (c *Client) Pending() int64 { return c.pending.Load() }

// Closed reports whether the client has failed or been ended.
func (c *Client) Closed() bool { return c.closed.Load() }

// End stops the write pump. Idempotent; safe from any goroutine.
func (c *Client) End() {
	c.endOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
	})
}

// Done is closed once the write pump has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// Hub is the live-client registry and broadcaster.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	clients       map[*Client]struct{}
	dropThreshold int64
	heartbeat     time.Duration
	count         atomic.Int64
}

// NewHub builds a hub. heartbeat is the comment-frame interval;
// dropThreshold is the per-client pending-byte bound at or above which
// frames are dropped for that client.
func NewHub(heartbeat time.Duration, dropThreshold int64) *Hub {
	return &Hub{
		register:      make(chan *Client, 16),
		unregister:    make(chan *Client, 16),
		broadcast:     make(chan []byte, 256),
		clients:       make(map[*Client]struct{}),
		dropThreshold: dropThreshold,
		heartbeat:     heartbeat,
	}
}

// Run processes registrations, broadcasts, and heartbeats until ctx is
// cancelled, then ends every client and clears the registry.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.End()
			}
			h.clients = make(map[*Client]struct{})
			h.count.Store(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.End()
			}
			h.count.Store(int64(len(h.clients)))

		case frame := <-h.broadcast:
			h.deliver(frame)

		case <-tick.C:
			h.deliver([]byte(fmt.Sprintf(": hb %d\n\n", time.Now().UnixMilli())))
		}
	}
}

// deliver writes one frame to every registered client, pruning dead clients
// and skipping those at or over the backpressure threshold.
func (h *Hub) deliver(frame []byte) {
	for c := range h.clients {
		if c.Closed() {
			delete(h.clients, c)
			continue
		}
		if c.Pending() >= h.dropThreshold {
			// This client is too far behind; drop the frame for it only.
			continue
		}
		c.enqueue(frame)
	}
	h.count.Store(int64(len(h.clients)))
}

// Broadcast frames an event and queues it for delivery to every client. The
// send blocks if the hub loop falls behind, preserving frame order and
// delivery to healthy clients.
func (h *Hub) Broadcast(event string, id uint64, payload []byte) {
	h.broadcast <- Frame(event, id, payload)
}

// Register adds a client to the registry.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister ends a client and removes it from the registry. Never blocks:
// if the hub loop is gone the client is already ended, and the registry dies
// with the loop.
func (h *Hub) Unregister(c *Client) {
	c.End()
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }
