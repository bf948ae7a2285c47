// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wsstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const providerName = "ws"

// ErrConnectionLost is reported to every handler when the socket drops.
// The provider does not reconnect; callers resubscribe on a new provider.
var ErrConnectionLost = errors.New("wsstream: connection lost")

// Provider consumes a Hub over a single multiplexed WebSocket connection.
type Provider struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	watches map[string]*clientWatch
	nextID  uint64
	closed  bool
	lost    error
}

type clientWatch struct {
	h     changestream.Handler
	qh    changestream.QueryHandler
	queue *changestream.Queue
}

func (w *clientWatch) onError(err error) {
	if w.qh != nil {
		w.qh.OnError(err)
		return
	}
	w.h.OnError(err)
}

// Dial connects to a Hub at url ("ws://" or "wss://").
func Dial(ctx context.Context, url string, header http.Header) (*Provider, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsstream: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	p := &Provider{
		conn:    conn,
		logger:  log.WithComponent("changestream.ws"),
		done:    make(chan struct{}),
		watches: make(map[string]*clientWatch),
	}
	go p.readLoop()
	return p, nil
}

// Watch subscribes to one document.
func (p *Provider) Watch(path string, h changestream.Handler) (changestream.Subscription, error) {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return nil, err
	}
	return p.subscribe(&clientWatch{h: h}, request{Op: opWatch, Path: path})
}

// WatchQuery subscribes to a query result set.
func (p *Provider) WatchQuery(q changestream.Query, h changestream.QueryHandler) (changestream.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return p.subscribe(&clientWatch{qh: h}, request{Op: opQuery, Query: &q})
}

func (p *Provider) subscribe(w *clientWatch, req request) (changestream.Subscription, error) {
	p.mu.Lock()
	if err := p.unavailableLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.nextID++
	req.ID = strconv.FormatUint(p.nextID, 10)
	w.queue = changestream.NewQueue()
	p.watches[req.ID] = w
	p.mu.Unlock()

	if err := p.write(req); err != nil {
		p.remove(req.ID)
		return nil, fmt.Errorf("wsstream: send %s: %w", req.Op, err)
	}

	id := req.ID
	var once sync.Once
	return changestream.SubscriptionFunc(func() {
		once.Do(func() {
			if p.remove(id) {
				_ = p.write(request{Op: opUnwatch, ID: id})
			}
		})
	}), nil
}

// remove detaches a watch and reports whether the connection is still usable.
func (p *Provider) remove(id string) bool {
	p.mu.Lock()
	w := p.watches[id]
	delete(p.watches, id)
	usable := p.unavailableLocked() == nil
	p.mu.Unlock()
	if w != nil {
		w.queue.Close()
	}
	return usable
}

func (p *Provider) unavailableLocked() error {
	if p.lost != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, p.lost)
	}
	if p.closed {
		return changestream.ErrClosed
	}
	return nil
}

func (p *Provider) write(req request) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(req)
}

func (p *Provider) readLoop() {
	defer close(p.done)
	for {
		var m message
		if err := p.conn.ReadJSON(&m); err != nil {
			p.fail(err)
			return
		}
		p.dispatch(m)
	}
}

func (p *Provider) dispatch(m message) {
	p.mu.Lock()
	w := p.watches[m.ID]
	p.mu.Unlock()
	if w == nil {
		metrics.IncStreamDrop(providerName, "unknown_watch")
		return
	}

	var fn func()
	switch m.Type {
	case typeSnapshot:
		if w.h == nil || m.Snapshot == nil {
			return
		}
		s := fromWire(*m.Snapshot)
		fn = func() { w.h.OnSnapshot(s) }
	case typeResults:
		if w.qh == nil {
			return
		}
		res := make([]changestream.Snapshot, len(m.Results))
		for i, ws := range m.Results {
			res[i] = fromWire(ws)
		}
		fn = func() { w.qh.OnResults(res) }
	case typeError:
		err := errors.New(m.Error)
		fn = func() { w.onError(err) }
	default:
		p.logger.Debug().Str("type", m.Type).Msg("ignoring unknown frame")
		return
	}

	if !w.queue.Push(fn) {
		metrics.IncStreamDrop(providerName, "unsubscribed")
		return
	}
	metrics.IncStreamEvent(providerName, m.Type)
}

// fail reports a dropped connection to every open watch.
func (p *Provider) fail(cause error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.lost = cause
	watches := make([]*clientWatch, 0, len(p.watches))
	for _, w := range p.watches {
		watches = append(watches, w)
	}
	p.mu.Unlock()

	p.logger.Warn().Err(cause).Int("watches", len(watches)).Msg("change stream connection lost")
	metrics.IncStreamDrop(providerName, "connection_lost")
	err := fmt.Errorf("%w: %v", ErrConnectionLost, cause)
	for _, w := range watches {
		w.queue.Push(func() { w.onError(err) })
	}
}

// Close sends a close frame, waits for the read loop and detaches every
// watch.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	watches := p.watches
	p.watches = make(map[string]*clientWatch)
	p.mu.Unlock()

	p.writeMu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	p.writeMu.Unlock()
	err := p.conn.Close()
	<-p.done

	for _, w := range watches {
		w.queue.Close()
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
