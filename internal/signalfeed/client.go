package signalfeed

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"candlepipe/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// subscribeMsg narrows what a client receives. Empty lists match everything.
type subscribeMsg struct {
	Type       string   `json:"type"`
	ReqID      string   `json:"req_id,omitempty"`
	Symbols    []string `json:"symbols"`
	Strategies []string `json:"strategies"`
	Ping       int64    `json:"ping"`
}

// client is one websocket peer. send is never closed; shutdown is signalled
// by closing done, so concurrent writers to send cannot panic.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	symbols    map[string]bool
	strategies map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{hub: h, conn: conn, send: make(chan []byte, 256), done: make(chan struct{})}
}

// stop tells writePump to send a close frame and exit. Safe to call twice.
func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// enqueue queues b unless the client is stopped or its queue is full.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) matches(sig model.Signal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) > 0 && !c.symbols[sig.Symbol] {
		return false
	}
	if len(c.strategies) > 0 && !c.strategies[sig.Strategy] {
		return false
	}
	return true
}

func (c *client) subscribe(msg subscribeMsg) {
	c.mu.Lock()
	c.symbols = toSet(msg.Symbols)
	c.strategies = toSet(msg.Strategies)
	c.mu.Unlock()
}

func toSet(xs []string) map[string]bool {
	if len(xs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

func (c *client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(b)
}

// writePump coalesces queued envelopes into one text frame, newline separated.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next := <-c.send
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
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

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Println("[signalfeed] client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid message"})
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg)
			c.reply(map[string]any{"type": "subscribed", "req_id": msg.ReqID})
		case "UNSUBSCRIBE":
			c.subscribe(subscribeMsg{})
			c.reply(map[string]any{"type": "unsubscribed", "req_id": msg.ReqID})
		default:
			if msg.Ping > 0 {
				c.reply(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}
