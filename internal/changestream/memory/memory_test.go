// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu      sync.Mutex
	snaps   []changestream.Snapshot
	results [][]changestream.Snapshot
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
	r.results = append(r.results, res)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshots() []changestream.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changestream.Snapshot(nil), r.snaps...)
}

func (r *recorder) resultSets() [][]changestream.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]changestream.Snapshot(nil), r.results...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func ids(snaps []changestream.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID()
	}
	return out
}

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

func TestWatch_InitialSnapshotAndUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	p := New()
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, wait, tick)
	assert.False(t, rec.snapshots()[0].Exists, "missing document yields a not-found snapshot")

	require.NoError(t, p.Put(ctx, "orders/o-1", []byte(`{"statusProgress":"PROCESSING"}`)))
	require.NoError(t, p.Put(ctx, "orders/o-2", []byte(`{}`)))
	require.NoError(t, p.Put(ctx, "orders/o-1", []byte(`{"statusProgress":"DELIVERY"}`)))
	require.NoError(t, p.Delete(ctx, "orders/o-1"))

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 4 }, wait, tick)
	snaps := rec.snapshots()
	assert.JSONEq(t, `{"statusProgress":"PROCESSING"}`, string(snaps[1].Data))
	assert.JSONEq(t, `{"statusProgress":"DELIVERY"}`, string(snaps[2].Data))
	assert.False(t, snaps[3].Exists)
}

func TestWatch_UnsubscribeStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New()
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, wait, tick)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, p.Watchers())

	require.NoError(t, p.Put(context.Background(), "orders/o-1", []byte(`{}`)))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshots(), 1)
}

func TestWatch_UnsubscribeFromCallback(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New()
	defer p.Close()

	var sub changestream.Subscription
	var mu sync.Mutex
	calls := 0
	ready := make(chan struct{})
	h := changestream.HandlerFuncs{Snapshot: func(changestream.Snapshot) {
		<-ready
		mu.Lock()
		calls++
		mu.Unlock()
		sub.Unsubscribe()
	}}
	var err error
	sub, err = p.Watch("orders/o-1", h)
	require.NoError(t, err)
	close(ready)

	require.Eventually(t, func() bool { return p.Watchers() == 0 }, wait, tick)
	_ = p.Put(context.Background(), "orders/o-1", []byte(`{}`))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestWatch_InvalidPath(t *testing.T) {
	p := New()
	defer p.Close()
	_, err := p.Watch("orders", &recorder{})
	assert.ErrorIs(t, err, changestream.ErrInvalidPath)
}

func TestWatchQuery_FiltersAndOrders(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	p := New()
	defer p.Close()

	require.NoError(t, p.Put(ctx, "orders/a", []byte(`{"buyerId":"u1","createdAt":"2025-01-10T08:00:00Z"}`)))
	require.NoError(t, p.Put(ctx, "orders/b", []byte(`{"buyerId":"u2","createdAt":"2025-01-11T08:00:00Z"}`)))
	require.NoError(t, p.Put(ctx, "orders/c", []byte(`{"buyerId":"u1","createdAt":"2025-01-12T08:00:00Z"}`)))

	rec := &recorder{}
	q := changestream.Query{Collection: "orders", Field: "buyerId", Value: "u1", OrderBy: "createdAt", Descending: true}
	sub, err := p.WatchQuery(q, rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return len(rec.resultSets()) == 1 }, wait, tick)
	assert.Equal(t, []string{"c", "a"}, ids(rec.resultSets()[0]))

	// Unrelated buyer: no delivery.
	require.NoError(t, p.Put(ctx, "orders/d", []byte(`{"buyerId":"u2"}`)))
	// New match.
	require.NoError(t, p.Put(ctx, "orders/e", []byte(`{"buyerId":"u1","createdAt":"2025-01-13T08:00:00Z"}`)))
	// Member leaves the result set.
	require.NoError(t, p.Put(ctx, "orders/a", []byte(`{"buyerId":"u3"}`)))

	require.Eventually(t, func() bool { return len(rec.resultSets()) == 3 }, wait, tick)
	sets := rec.resultSets()
	assert.Equal(t, []string{"e", "c", "a"}, ids(sets[1]))
	assert.Equal(t, []string{"e", "c"}, ids(sets[2]))
}

func TestInjectError(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New()
	defer p.Close()

	doc, q := &recorder{}, &recorder{}
	s1, err := p.Watch("orders/o-1", doc)
	require.NoError(t, err)
	defer s1.Unsubscribe()
	s2, err := p.WatchQuery(changestream.Query{Collection: "orders", Field: "buyerId", Value: "u1"}, q)
	require.NoError(t, err)
	defer s2.Unsubscribe()

	boom := errors.New("connection reset")
	p.InjectError("orders/o-1", boom)
	p.InjectError("orders", boom)

	require.Eventually(t, func() bool { return len(doc.errors()) == 1 && len(q.errors()) == 1 }, wait, tick)
	assert.ErrorIs(t, doc.errors()[0], boom)
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New()
	_, err := p.Watch("orders/o-1", &recorder{})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Watch("orders/o-1", &recorder{})
	assert.ErrorIs(t, err, changestream.ErrClosed)
	assert.ErrorIs(t, p.Put(context.Background(), "orders/o-1", nil), changestream.ErrClosed)
}
