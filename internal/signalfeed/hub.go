// Package signalfeed streams strategy signals to websocket clients. The Hub
// is a pipeline executor: every signal the chain produces is broadcast to
// the connected peers whose subscription matches it.
package signalfeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"candlepipe/internal/model"
)

// Envelope is the frame sent for each signal.
type Envelope struct {
	Type   string       `json:"type"`
	Seq    int64        `json:"seq"`
	Signal model.Signal `json:"data"`
}

// Hub fans signals out to websocket clients. OnSignals may be called from
// the pipeline goroutine while clients connect and disconnect concurrently.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	seq     int64
	closed  bool

	recent   *recentBuffer
	upgrader websocket.Upgrader
}

// Option configures a Hub.
type Option func(*Hub)

// WithHistory sets how many recent envelopes are kept for catch-up.
func WithHistory(n int) Option {
	return func(h *Hub) { h.recent = newRecentBuffer(n) }
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]bool),
		recent:  newRecentBuffer(256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// OnSignals broadcasts each signal as its own envelope. Slow clients whose
// send queue is full miss the frame rather than blocking the pipeline.
func (h *Hub) OnSignals(ctx context.Context, signals []model.Signal) {
	for _, sig := range signals {
		h.broadcast(sig)
	}
}

func (h *Hub) broadcast(sig model.Signal) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	data, err := json.Marshal(Envelope{Type: "signal", Seq: seq, Signal: sig})
	if err != nil {
		log.Printf("[signalfeed] encode signal %s/%s: %v", sig.Strategy, sig.Symbol, err)
		return
	}
	h.recent.push(seq, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.matches(sig) {
			c.enqueue(data)
		}
	}
}

// ServeHTTP upgrades the request to a websocket. The optional "since" query
// parameter replays buffered envelopes with a larger sequence number.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signalfeed] upgrade: %v", err)
		return
	}

	var after int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			after = v
		}
	}

	c := newClient(h, conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if after >= 0 {
		for _, e := range h.recent.since(after) {
			c.enqueue(e.Data)
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[signalfeed] client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	c.stop()
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops further broadcasts.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
	return nil
}
