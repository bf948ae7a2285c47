// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wsstream

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/changestream/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
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

type fixture struct {
	mem *memory.Provider
	hub *Hub
	srv *httptest.Server
	url string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	hub := NewHub(mem, nil)
	srv := httptest.NewServer(hub)
	return &fixture{mem: mem, hub: hub, srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *fixture) close() {
	f.hub.Close()
	f.srv.Close()
	_ = f.mem.Close()
}

func TestWatch_RelaysSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()
	ctx := context.Background()

	require.NoError(t, f.mem.Put(ctx, "orders/o-1", []byte(`{"statusProgress":"PROCESSING"}`)))

	p, err := Dial(ctx, f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, wait, tick)
	first := rec.snapshots()[0]
	assert.True(t, first.Exists)
	assert.Equal(t, "o-1", first.ID())
	assert.JSONEq(t, `{"statusProgress":"PROCESSING"}`, string(first.Data))

	require.NoError(t, f.mem.Delete(ctx, "orders/o-1"))
	require.Eventually(t, func() bool { return len(rec.snapshots()) == 2 }, wait, tick)
	assert.False(t, rec.snapshots()[1].Exists)
	assert.Nil(t, rec.snapshots()[1].Data)
}

func TestWatchQuery_RelaysOrderedResults(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()
	ctx := context.Background()

	p, err := Dial(ctx, f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	q := changestream.Query{Collection: "orders", Field: "buyerId", Value: "u1", OrderBy: "createdAt", Descending: true}
	rec := &recorder{}
	sub, err := p.WatchQuery(q, rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return len(rec.resultSets()) >= 1 }, wait, tick)
	assert.Empty(t, rec.resultSets()[0])

	require.NoError(t, f.mem.Put(ctx, "orders/a", []byte(`{"buyerId":"u1","createdAt":1}`)))
	require.NoError(t, f.mem.Put(ctx, "orders/b", []byte(`{"buyerId":"u1","createdAt":2}`)))
	require.NoError(t, f.mem.Put(ctx, "orders/c", []byte(`{"buyerId":"u2","createdAt":3}`)))

	require.Eventually(t, func() bool {
		sets := rec.resultSets()
		return len(sets[len(sets)-1]) == 2
	}, wait, tick)
	sets := rec.resultSets()
	last := sets[len(sets)-1]
	assert.Equal(t, []string{"b", "a"}, []string{last[0].ID(), last[1].ID()})
}

func TestUnsubscribe_DetachesServerWatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()

	p, err := Dial(context.Background(), f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.mem.Watchers() == 1 }, wait, tick)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Eventually(t, func() bool { return f.mem.Watchers() == 0 }, wait, tick)
}

func TestWatch_InvalidInputRejectedLocally(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()

	p, err := Dial(context.Background(), f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Watch("orders", &recorder{})
	assert.ErrorIs(t, err, changestream.ErrInvalidPath)

	_, err = p.WatchQuery(changestream.Query{Collection: "orders"}, &recorder{})
	assert.Error(t, err)
}

func TestServerError_ReachesHandler(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()

	p, err := Dial(context.Background(), f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	rec := &recorder{}
	sub, err := p.Watch("orders/o-1", rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool { return len(rec.snapshots()) == 1 }, wait, tick)

	f.mem.InjectError("orders/o-1", assert.AnError)
	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, wait, tick)
	assert.Contains(t, rec.errors()[0].Error(), assert.AnError.Error())
}

func TestConnectionLoss_ReportedToEveryWatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()

	p, err := Dial(context.Background(), f.url, nil)
	require.NoError(t, err)
	defer p.Close()

	doc, list := &recorder{}, &recorder{}
	_, err = p.Watch("orders/o-1", doc)
	require.NoError(t, err)
	_, err = p.WatchQuery(changestream.Query{Collection: "orders", Field: "buyerId", Value: "u1"}, list)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Connections() == 1 && f.mem.Watchers() == 2 }, wait, tick)

	f.hub.Close()

	require.Eventually(t, func() bool { return len(doc.errors()) == 1 && len(list.errors()) == 1 }, wait, tick)
	assert.ErrorIs(t, doc.errors()[0], ErrConnectionLost)
	assert.ErrorIs(t, list.errors()[0], ErrConnectionLost)

	_, err = p.Watch("orders/o-2", &recorder{})
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestClose_IsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t)
	defer f.close()

	p, err := Dial(context.Background(), f.url, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Watch("orders/o-1", &recorder{})
	assert.ErrorIs(t, err, changestream.ErrClosed)
}
