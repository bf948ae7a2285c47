// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package amqpstream carries document snapshots over a RabbitMQ topic
// exchange. Each watch owns an exclusive auto-delete queue bound to the
// routing keys it cares about.
package amqpstream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	providerName = "amqp"

	headerPath   = "path"
	headerExists = "exists"
)

// Channel is the subset of *amqp.Channel the adapter uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// ChannelOpener opens a fresh channel. Each watch gets its own.
type ChannelOpener func() (Channel, error)

// ConnectionOpener adapts an *amqp.Connection.
func ConnectionOpener(conn *amqp.Connection) ChannelOpener {
	return func() (Channel, error) {
		if conn == nil || conn.IsClosed() {
			return nil, errors.New("amqp: connection is not open")
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("amqp: open channel: %w", err)
		}
		return ch, nil
	}
}

// RoutingKey maps "collection/id" to the topic key "collection.id". Dots in
// ids become underscores; the path header stays authoritative.
func RoutingKey(path string) string {
	collection, id, _ := strings.Cut(path, "/")
	return collection + "." + strings.ReplaceAll(id, ".", "_")
}

func declareExchange(ch Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Provider consumes snapshots published by Publisher. The exchange keeps no
// state, so watches see changes only; there is no initial snapshot.
type Provider struct {
	open     ChannelOpener
	exchange string
	logger   zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ changestream.Provider = (*Provider)(nil)

// NewProvider creates a provider that opens channels with open.
func NewProvider(open ChannelOpener, exchange string) *Provider {
	return &Provider{
		open:     open,
		exchange: exchange,
		logger:   log.WithComponent("changestream.amqp"),
		subs:     make(map[*subscription]struct{}),
	}
}

type subscription struct {
	p     *Provider
	ch    Channel
	queue *changestream.Queue
	stop  chan struct{}
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.p.mu.Lock()
		delete(s.p.subs, s)
		s.p.mu.Unlock()
		close(s.stop)
		s.queue.Close()
		_ = s.ch.Close()
	})
}

// Watch binds a queue to one document's routing key.
func (p *Provider) Watch(path string, h changestream.Handler) (changestream.Subscription, error) {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return nil, err
	}
	return p.start(RoutingKey(path), func(snap changestream.Snapshot) func() {
		if snap.Path != path {
			return nil
		}
		return func() { h.OnSnapshot(snap) }
	}, h.OnError)
}

// WatchQuery binds a queue to the whole collection and maintains the result
// set from the snapshots it sees, starting empty.
func (p *Provider) WatchQuery(q changestream.Query, h changestream.QueryHandler) (changestream.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	// members is only touched by the consume goroutine.
	members := make(map[string]changestream.Snapshot)
	results := func() []changestream.Snapshot {
		out := make([]changestream.Snapshot, 0, len(members))
		for _, s := range members {
			out = append(out, s)
		}
		// Path order first so equal scores are deterministic.
		slices.SortFunc(out, func(a, b changestream.Snapshot) int { return strings.Compare(a.Path, b.Path) })
		q.Sort(out)
		return out
	}

	sub, err := p.start(q.Collection+".*", func(snap changestream.Snapshot) func() {
		collection, _, err := changestream.SplitPath(snap.Path)
		if err != nil || collection != q.Collection {
			return nil
		}
		_, wasMember := members[snap.Path]
		if snap.Exists && q.Matches(snap.Data) {
			members[snap.Path] = snap
		} else if wasMember {
			delete(members, snap.Path)
		} else {
			return nil
		}
		res := results()
		return func() { h.OnResults(res) }
	}, h.OnError)
	if err != nil {
		return nil, err
	}

	empty := []changestream.Snapshot{}
	sub.queue.Push(func() { h.OnResults(empty) })
	return sub, nil
}

func (p *Provider) start(bindingKey string, onSnap func(changestream.Snapshot) func(), onErr func(error)) (*subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, changestream.ErrClosed
	}
	p.mu.Unlock()

	ch, err := p.open()
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*subscription, error) {
		_ = ch.Close()
		return nil, err
	}

	if err := declareExchange(ch, p.exchange); err != nil {
		return fail(err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fail(fmt.Errorf("amqp: declare queue: %w", err))
	}
	if err := ch.QueueBind(q.Name, bindingKey, p.exchange, false, nil); err != nil {
		return fail(fmt.Errorf("amqp: bind %s: %w", bindingKey, err))
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("amqp: consume %s: %w", q.Name, err))
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	sub := &subscription{p: p, ch: ch, queue: changestream.NewQueue(), stop: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		sub.Unsubscribe()
		return nil, changestream.ErrClosed
	}
	p.subs[sub] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.consume(sub, deliveries, closed, onSnap, onErr)
	}()

	p.logger.Debug().Str(log.FieldTopic, bindingKey).Str("queue", q.Name).Msg("amqp watch started")
	return sub, nil
}

func (p *Provider) consume(sub *subscription, deliveries <-chan amqp.Delivery, closed chan *amqp.Error, onSnap func(changestream.Snapshot) func(), onErr func(error)) {
	for {
		select {
		case <-sub.stop:
			return
		case cerr, ok := <-closed:
			if !ok || cerr == nil {
				return
			}
			metrics.IncStreamEvent(providerName, "error")
			err := fmt.Errorf("amqp: channel closed: %w", cerr)
			sub.queue.Push(func() { onErr(err) })
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			snap, err := decodeDelivery(d)
			if err != nil {
				metrics.IncStreamDrop(providerName, "malformed")
				p.logger.Warn().Err(err).Str(log.FieldTopic, d.RoutingKey).Msg("dropping malformed delivery")
				continue
			}
			fn := onSnap(snap)
			if fn == nil {
				continue
			}
			metrics.IncStreamEvent(providerName, "snapshot")
			if !sub.queue.Push(fn) {
				metrics.IncStreamDrop(providerName, "unsubscribed")
			}
		}
	}
}

func decodeDelivery(d amqp.Delivery) (changestream.Snapshot, error) {
	path, _ := d.Headers[headerPath].(string)
	if _, _, err := changestream.SplitPath(path); err != nil {
		return changestream.Snapshot{}, err
	}
	exists, ok := d.Headers[headerExists].(bool)
	if !ok {
		exists = len(d.Body) > 0
	}
	snap := changestream.Snapshot{Path: path, Exists: exists}
	if exists {
		snap.Data = d.Body
	}
	return snap, nil
}

// Close detaches every watch and waits for consumers to exit.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := make([]*subscription, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	p.wg.Wait()
	return nil
}
