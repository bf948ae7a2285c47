// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package amqpstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeBroker routes publishes to bound queues with topic matching.
type fakeBroker struct {
	mu       sync.Mutex
	queues   map[string]chan amqp.Delivery
	bindings map[string][]string // queue -> keys
	n        int
	channels []*fakeChannel
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: map[string]chan amqp.Delivery{}, bindings: map[string][]string{}}
}

func (b *fakeBroker) opener() ChannelOpener {
	return func() (Channel, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		ch := &fakeChannel{b: b}
		b.channels = append(b.channels, ch)
		return ch, nil
	}
}

func topicMatch(pattern, key string) bool {
	pw, kw := strings.Split(pattern, "."), strings.Split(key, ".")
	if len(pw) != len(kw) {
		return false
	}
	for i := range pw {
		if pw[i] != "*" && pw[i] != kw[i] {
			return false
		}
	}
	return true
}

type fakeChannel struct {
	b      *fakeBroker
	mu     sync.Mutex
	queues []string
	closeC chan *amqp.Error
	closed bool
}

func (c *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (c *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.n++
	name := fmt.Sprintf("amq.gen-%d", c.b.n)
	c.b.queues[name] = make(chan amqp.Delivery, 16)
	c.mu.Lock()
	c.queues = append(c.queues, name)
	c.mu.Unlock()
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, _ string, _ bool, _ amqp.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.bindings[name] = append(c.b.bindings[name], key)
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.queues[queue], nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	for q, keys := range c.b.bindings {
		for _, k := range keys {
			if topicMatch(k, key) {
				c.b.queues[q] <- amqp.Delivery{RoutingKey: key, Headers: msg.Headers, Body: msg.Body}
				break
			}
		}
	}
	return nil
}

func (c *fakeChannel) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeC = ch
	return ch
}

// fail simulates the broker closing the channel.
func (c *fakeChannel) fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeC <- &amqp.Error{Code: 320, Reason: reason}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.b.mu.Lock()
	for _, q := range c.queues {
		delete(c.b.bindings, q)
	}
	c.b.mu.Unlock()
	return nil
}

type recorder struct {
	mu      sync.Mutex
	snaps   []changestream.Snapshot
	results [][]string
	errs    []error
}

func (r *recorder) OnSnapshot(s changestream.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) OnResults(res []changestream.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(res))
	for i, s := range res {
		ids[i] = s.ID()
	}
	r.results = append(r.results, ids)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps), len(r.results), len(r.errs)
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "orders.o-1", RoutingKey("orders/o-1"))
	assert.Equal(t, "orders.a_b", RoutingKey("orders/a.b"))
}

func TestWatch_ReceivesPublishedSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	b := newFakeBroker()

	p := NewProvider(b.opener(), "ex")
	defer p.Close()
	pub, err := NewPublisher(b.opener(), "ex")
	require.NoError(t, err)
	defer pub.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, pub.Put(ctx, "orders/o-1", []byte(`{"statusProgress":"DELIVERY"}`)))
	require.NoError(t, pub.Put(ctx, "orders/o-2", []byte(`{}`)))
	require.NoError(t, pub.Delete(ctx, "orders/o-1"))

	require.Eventually(t, func() bool { n, _, _ := rec.counts(); return n == 2 }, wait, tick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.snaps[0].Exists)
	assert.JSONEq(t, `{"statusProgress":"DELIVERY"}`, string(rec.snaps[0].Data))
	assert.False(t, rec.snaps[1].Exists)
	assert.Nil(t, rec.snaps[1].Data)
}

func TestWatchQuery_MaintainsResultSet(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	b := newFakeBroker()

	p := NewProvider(b.opener(), "ex")
	defer p.Close()
	pub, err := NewPublisher(b.opener(), "ex")
	require.NoError(t, err)

	rec := &recorder{}
	q := changestream.Query{Collection: "orders", Field: "buyerId", Value: "u1", OrderBy: "createdAt", Descending: true}
	sub, err := p.WatchQuery(q, rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, pub.Put(ctx, "orders/a", []byte(`{"buyerId":"u1","createdAt":1}`)))
	require.NoError(t, pub.Put(ctx, "orders/x", []byte(`{"buyerId":"u9","createdAt":5}`)))
	require.NoError(t, pub.Put(ctx, "orders/b", []byte(`{"buyerId":"u1","createdAt":2}`)))
	require.NoError(t, pub.Delete(ctx, "orders/a"))

	require.Eventually(t, func() bool { _, n, _ := rec.counts(); return n == 4 }, wait, tick)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, [][]string{{}, {"a"}, {"b", "a"}, {"b"}}, rec.results)
}

func TestWatch_ChannelCloseIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newFakeBroker()
	p := NewProvider(b.opener(), "ex")
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	b.mu.Lock()
	ch := b.channels[0]
	b.mu.Unlock()
	ch.fail("connection forced")

	require.Eventually(t, func() bool { _, _, n := rec.counts(); return n == 1 }, wait, tick)
	var aerr *amqp.Error
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, errors.As(rec.errs[0], &aerr))
}

func TestDecodeDelivery(t *testing.T) {
	_, err := decodeDelivery(amqp.Delivery{})
	assert.ErrorIs(t, err, changestream.ErrInvalidPath)

	snap, err := decodeDelivery(amqp.Delivery{Headers: amqp.Table{"path": "orders/o-1"}, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, snap.Exists, "body without exists header counts as present")
}

func TestProvider_Closed(t *testing.T) {
	p := NewProvider(newFakeBroker().opener(), "ex")
	require.NoError(t, p.Close())
	_, err := p.Watch("orders/o-1", &recorder{})
	assert.ErrorIs(t, err, changestream.ErrClosed)
}
