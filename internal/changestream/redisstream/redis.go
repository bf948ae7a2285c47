// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package redisstream implements the change stream on Redis: documents are plain
// keys, queries are served from sorted-set indexes, and changes are signalled
// over pub/sub.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const providerName = "redis"

// Options configures key layout. Writer and Provider must agree on them.
type Options struct {
	// Prefix namespaces every key and channel, e.g. "ordertrack:".
	Prefix string
	// IndexFields are the top-level document fields that get a query index.
	IndexFields []string
	// ScoreField orders index entries; documents without it score by write time.
	ScoreField string
	// OpTimeout bounds each Redis round trip.
	OpTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 3 * time.Second
	}
	if o.ScoreField == "" {
		o.ScoreField = "createdAt"
	}
	if len(o.IndexFields) == 0 {
		o.IndexFields = []string{"buyerId", "sellerId"}
	}
	return o
}

func (o Options) docKey(path string) string { return o.Prefix + "doc:" + path }

func (o Options) indexKey(collection, field, value string) string {
	return fmt.Sprintf("%sidx:%s:%s:%s", o.Prefix, collection, field, value)
}

func (o Options) docChannel(path string) string { return o.Prefix + "changes:" + path }

func (o Options) collectionChannel(collection string) string {
	return o.Prefix + "changes:" + collection
}

// Provider watches documents stored by Writer.
type Provider struct {
	client redis.UniversalClient
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ changestream.Provider = (*Provider)(nil)

// NewProvider wraps client. The client stays owned by the caller.
func NewProvider(client redis.UniversalClient, opts Options) *Provider {
	return &Provider{
		client: client,
		opts:   opts.withDefaults(),
		logger: log.WithComponent("changestream.redis"),
		subs:   make(map[*subscription]struct{}),
	}
}

type subscription struct {
	p      *Provider
	cancel context.CancelFunc
	pubsub *redis.PubSub
	queue  *changestream.Queue
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.p.mu.Lock()
		delete(s.p.subs, s)
		s.p.mu.Unlock()
		s.queue.Close()
		s.cancel()
		_ = s.pubsub.Close()
	})
}

// Watch subscribes to one document. The subscription is confirmed before the
// initial read so no change between the two is lost.
func (p *Provider) Watch(path string, h changestream.Handler) (changestream.Subscription, error) {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) func() {
		snap, err := p.get(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncStreamEvent(providerName, "error")
			return func() { h.OnError(err) }
		}
		metrics.IncStreamEvent(providerName, "snapshot")
		return func() { h.OnSnapshot(snap) }
	}
	return p.start(p.opts.docChannel(path), load)
}

// WatchQuery subscribes to a collection and re-reads the index on every
// change in it.
func (p *Provider) WatchQuery(q changestream.Query, h changestream.QueryHandler) (changestream.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) func() {
		results, err := p.query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncStreamEvent(providerName, "error")
			return func() { h.OnError(err) }
		}
		metrics.IncStreamEvent(providerName, "results")
		return func() { h.OnResults(results) }
	}
	return p.start(p.opts.collectionChannel(q.Collection), load)
}

// start subscribes to channel and runs load once immediately and once per
// message. Reads happen on the receive goroutine, callbacks on the queue.
func (p *Provider) start(channel string, load func(ctx context.Context) func()) (changestream.Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, changestream.ErrClosed
	}
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := p.client.Subscribe(ctx, channel)

	confirmCtx, confirmCancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer confirmCancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	queue := changestream.NewQueue()
	sub := &subscription{p: p, cancel: cancel, pubsub: pubsub, queue: queue}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		sub.Unsubscribe()
		return nil, changestream.ErrClosed
	}
	p.subs[sub] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	deliver := func() {
		fn := load(ctx)
		if fn != nil && !queue.Push(fn) {
			metrics.IncStreamDrop(providerName, "unsubscribed")
		}
	}

	ch := pubsub.Channel()
	go func() {
		defer p.wg.Done()
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	p.logger.Debug().Str(log.FieldTopic, channel).Msg("redis watch started")
	return sub, nil
}

func (p *Provider) get(ctx context.Context, path string) (changestream.Snapshot, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()

	data, err := p.client.Get(opCtx, p.opts.docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return changestream.Snapshot{Path: path}, nil
	}
	if err != nil {
		return changestream.Snapshot{}, fmt.Errorf("redis get %s: %w", path, err)
	}
	return changestream.Snapshot{Path: path, Exists: true, Data: data}, nil
}

func (p *Provider) query(ctx context.Context, q changestream.Query) ([]changestream.Snapshot, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	defer cancel()

	idx := p.opts.indexKey(q.Collection, q.Field, q.Value)
	var ids []string
	var err error
	if q.Descending {
		ids, err = p.client.ZRevRange(opCtx, idx, 0, -1).Result()
	} else {
		ids, err = p.client.ZRange(opCtx, idx, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", q.Key(), err)
	}
	if len(ids) == 0 {
		return []changestream.Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.opts.docKey(changestream.DocPath(q.Collection, id))
	}
	vals, err := p.client.MGet(opCtx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", q.Key(), err)
	}

	out := make([]changestream.Snapshot, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // index entry outlived its document
		}
		data := []byte(s)
		if !q.Matches(data) {
			continue
		}
		out = append(out, changestream.Snapshot{
			Path:   changestream.DocPath(q.Collection, ids[i]),
			Exists: true,
			Data:   data,
		})
	}
	return out, nil
}

// Close detaches every subscription and waits for receive goroutines.
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
