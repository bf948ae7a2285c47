// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package memory is an in-process document store with change fan-out, used
// for tests and local development.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/metrics"
)

const providerName = "memory"

type document struct {
	data []byte
	seq  uint64
}

// Provider keeps documents in memory and notifies watchers on every write.
// Every watch receives the current state first.
type Provider struct {
	mu      sync.Mutex
	docs    map[string]document
	seq     uint64
	nextID  uint64
	watches map[uint64]*watch
	closed  bool
}

type watch struct {
	id    uint64
	path  string
	query *changestream.Query
	h     changestream.Handler
	qh    changestream.QueryHandler
	queue *changestream.Queue

	// members is the path set of the last delivered query result.
	members map[string]struct{}
}

var (
	_ changestream.Provider = (*Provider)(nil)
	_ changestream.Writer   = (*Provider)(nil)
)

// New creates an empty provider.
func New() *Provider {
	return &Provider{
		docs:    make(map[string]document),
		watches: make(map[uint64]*watch),
	}
}

// Watch registers h for one document path.
func (p *Provider) Watch(path string, h changestream.Handler) (changestream.Subscription, error) {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, changestream.ErrClosed
	}

	w := p.register(&watch{path: path, h: h})
	snap := p.snapshotLocked(path)
	p.deliver(w, func() { h.OnSnapshot(snap) })
	return p.subscription(w), nil
}

// WatchQuery registers h for a collection query.
func (p *Provider) WatchQuery(q changestream.Query, h changestream.QueryHandler) (changestream.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, changestream.ErrClosed
	}

	w := p.register(&watch{query: &q, qh: h})
	p.deliverQueryLocked(w)
	return p.subscription(w), nil
}

func (p *Provider) register(w *watch) *watch {
	p.nextID++
	w.id = p.nextID
	w.queue = changestream.NewQueue()
	p.watches[w.id] = w
	return w
}

func (p *Provider) subscription(w *watch) changestream.Subscription {
	var once sync.Once
	return changestream.SubscriptionFunc(func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watches, w.id)
			p.mu.Unlock()
			w.queue.Close()
		})
	})
}

func (p *Provider) deliver(w *watch, fn func()) {
	if !w.queue.Push(fn) {
		metrics.IncStreamDrop(providerName, "unsubscribed")
		return
	}
	metrics.IncStreamEvent(providerName, "snapshot")
}

func (p *Provider) snapshotLocked(path string) changestream.Snapshot {
	doc, ok := p.docs[path]
	if !ok {
		return changestream.Snapshot{Path: path}
	}
	return changestream.Snapshot{Path: path, Exists: true, Data: slices.Clone(doc.data)}
}

// queryLocked evaluates q. Ties in the order key fall back to insertion
// order in the query direction.
func (p *Provider) queryLocked(q changestream.Query) []changestream.Snapshot {
	type hit struct {
		snap changestream.Snapshot
		seq  uint64
	}
	var hits []hit
	for path, doc := range p.docs {
		collection, _, err := changestream.SplitPath(path)
		if err != nil || collection != q.Collection || !q.Matches(doc.data) {
			continue
		}
		hits = append(hits, hit{
			snap: changestream.Snapshot{Path: path, Exists: true, Data: slices.Clone(doc.data)},
			seq:  doc.seq,
		})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if q.Descending {
			return cmp.Compare(b.seq, a.seq)
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]changestream.Snapshot, len(hits))
	for i, h := range hits {
		out[i] = h.snap
	}
	q.Sort(out)
	return out
}

func (p *Provider) deliverQueryLocked(w *watch) {
	results := p.queryLocked(*w.query)
	w.members = make(map[string]struct{}, len(results))
	for _, r := range results {
		w.members[r.Path] = struct{}{}
	}
	qh := w.qh
	p.deliver(w, func() { qh.OnResults(results) })
}

// Put creates or replaces a document and notifies matching watchers.
func (p *Provider) Put(_ context.Context, path string, data []byte) error {
	if _, _, err := changestream.SplitPath(path); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return changestream.ErrClosed
	}

	doc, exists := p.docs[path]
	if !exists {
		p.seq++
		doc.seq = p.seq
	}
	doc.data = slices.Clone(data)
	p.docs[path] = doc
	p.notifyLocked(path)
	return nil
}

// Delete removes a document and notifies watchers. Deleting a missing
// document is a no-op.
func (p *Provider) Delete(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return changestream.ErrClosed
	}
	if _, ok := p.docs[path]; !ok {
		return nil
	}
	delete(p.docs, path)
	p.notifyLocked(path)
	return nil
}

func (p *Provider) notifyLocked(path string) {
	collection, _, _ := changestream.SplitPath(path)
	data := p.docs[path].data

	for _, w := range p.sortedWatchesLocked() {
		if w.query == nil {
			if w.path == path {
				snap := p.snapshotLocked(path)
				h := w.h
				p.deliver(w, func() { h.OnSnapshot(snap) })
			}
			continue
		}
		if w.query.Collection != collection {
			continue
		}
		_, wasMember := w.members[path]
		if wasMember || (data != nil && w.query.Matches(data)) {
			p.deliverQueryLocked(w)
		}
	}
}

// InjectError delivers err to every watcher of path, or to every query
// watcher of the collection when path has no id. Tests use it to simulate
// transport failures.
func (p *Provider) InjectError(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.sortedWatchesLocked() {
		switch {
		case w.query == nil && w.path == path:
			h := w.h
			p.deliver(w, func() { h.OnError(err) })
		case w.query != nil && w.query.Collection == path:
			qh := w.qh
			p.deliver(w, func() { qh.OnError(err) })
		}
	}
}

// Watchers returns the number of live watches.
func (p *Provider) Watchers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watches)
}

func (p *Provider) sortedWatchesLocked() []*watch {
	out := make([]*watch, 0, len(p.watches))
	for _, w := range p.watches {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b *watch) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Close detaches every watcher. Further calls return ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	watches := p.watches
	p.watches = make(map[uint64]*watch)
	p.mu.Unlock()

	for _, w := range watches {
		w.queue.Close()
	}
	return nil
}
