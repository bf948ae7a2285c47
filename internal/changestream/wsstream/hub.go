// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wsstream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub exposes any changestream.Provider to WebSocket clients.
type Hub struct {
	source   changestream.Provider
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[*hubConn]struct{}
	wg    sync.WaitGroup
}

// NewHub serves watches against source. checkOrigin may be nil to allow any
// origin.
func NewHub(source changestream.Provider, checkOrigin func(*http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: log.WithComponent("changestream.ws.hub"),
		conns:  make(map[*hubConn]struct{}),
	}
}

type hubConn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]changestream.Subscription
	closed bool
}

// ServeHTTP upgrades the request and serves watch requests until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &hubConn{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]changestream.Subscription),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	go c.writePump()
	c.readPump()
}

// Connections returns the number of connected clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client and waits for their pumps to stop.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}
	h.wg.Wait()
}

func (c *hubConn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.handle(req)
	}
}

func (c *hubConn) handle(req request) {
	switch req.Op {
	case opWatch:
		id := req.ID
		sub, err := c.hub.source.Watch(req.Path, changestream.HandlerFuncs{
			Snapshot: func(s changestream.Snapshot) {
				ws := toWire(s)
				c.enqueue(message{ID: id, Type: typeSnapshot, Snapshot: &ws})
			},
			Error: func(err error) { c.enqueue(message{ID: id, Type: typeError, Error: err.Error()}) },
		})
		c.track(id, sub, err)
	case opQuery:
		if req.Query == nil {
			c.enqueue(message{ID: req.ID, Type: typeError, Error: "query missing"})
			return
		}
		id := req.ID
		sub, err := c.hub.source.WatchQuery(*req.Query, changestream.QueryHandlerFuncs{
			Results: func(res []changestream.Snapshot) {
				out := make([]wireSnapshot, len(res))
				for i, s := range res {
					out[i] = toWire(s)
				}
				c.enqueue(message{ID: id, Type: typeResults, Results: out})
			},
			Error: func(err error) { c.enqueue(message{ID: id, Type: typeError, Error: err.Error()}) },
		})
		c.track(id, sub, err)
	case opUnwatch:
		c.mu.Lock()
		sub := c.subs[req.ID]
		delete(c.subs, req.ID)
		c.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
	default:
		c.enqueue(message{ID: req.ID, Type: typeError, Error: "unknown op " + req.Op})
	}
}

func (c *hubConn) track(id string, sub changestream.Subscription, err error) {
	if err != nil {
		c.enqueue(message{ID: id, Type: typeError, Error: err.Error()})
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	prev := c.subs[id]
	c.subs[id] = sub
	c.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
}

// enqueue hands a frame to the write pump. A client that cannot keep up is
// disconnected rather than silently missing frames.
func (c *hubConn) enqueue(m message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.IncStreamDrop("ws", "slow_consumer")
		c.hub.logger.Warn().Msg("websocket client too slow, disconnecting")
		_ = c.ws.Close()
	}
}

func (c *hubConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *hubConn) shutdown() {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	c.hub.mu.Lock()
	delete(c.hub.conns, c)
	c.hub.mu.Unlock()
	c.hub.wg.Done()
}
