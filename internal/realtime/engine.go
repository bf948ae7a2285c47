// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package realtime turns a stream of remote order snapshots into local,
// deduplicated status transitions. It owns the subscription registries and
// the last-known-status cache that drives transition detection.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/directions"
	"github.com/ManuGH/ordertrack/internal/domain/order/model"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/ManuGH/ordertrack/internal/notify"
	"github.com/ManuGH/ordertrack/internal/statusstore"
	"github.com/ManuGH/ordertrack/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	ordersCollection = "orders"
	buyerField       = "buyerId"
	createdAtField   = "createdAt"

	defaultNotifyTimeout = 10 * time.Second
	defaultStoreTimeout  = 2 * time.Second
	defaultRouteTimeout  = 15 * time.Second
)

// Options wires the engine's collaborators. Only Provider is required.
type Options struct {
	Provider   changestream.Provider
	Sink       notify.Sink
	Store      statusstore.Store
	Directions directions.Provider

	// OnRoute is called from a worker when a delivery route was resolved.
	OnRoute func(orderID string, route directions.Route)

	NotifyTimeout time.Duration
	StoreTimeout  time.Duration
	RouteTimeout  time.Duration
}

// Engine is the realtime sync engine. All registry and cache mutation is
// serialized by mu.
type Engine struct {
	provider   changestream.Provider
	sink       notify.Sink
	store      statusstore.Store
	directions directions.Provider
	onRoute    func(string, directions.Route)

	notifyTimeout time.Duration
	storeTimeout  time.Duration
	routeTimeout  time.Duration

	logger  zerolog.Logger
	tracer  trace.Tracer
	workers workerGroup

	mu       sync.Mutex
	orders   map[string]*Handle
	users    map[string]*Handle
	statuses map[string]model.Status
	latest   map[string]model.Order
	routes   map[string]trackedRoute
	epoch    uint64
	shutdown bool
}

type trackedRoute struct {
	key   string
	route directions.Route
	ready bool
}

// New builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("realtime: change-stream provider is required")
	}
	e := &Engine{
		provider:      opts.Provider,
		sink:          opts.Sink,
		store:         opts.Store,
		directions:    opts.Directions,
		onRoute:       opts.OnRoute,
		notifyTimeout: orDefault(opts.NotifyTimeout, defaultNotifyTimeout),
		storeTimeout:  orDefault(opts.StoreTimeout, defaultStoreTimeout),
		routeTimeout:  orDefault(opts.RouteTimeout, defaultRouteTimeout),
		logger:        log.WithComponent("realtime"),
		tracer:        telemetry.Tracer("ordertrack/realtime"),
		orders:        make(map[string]*Handle),
		users:         make(map[string]*Handle),
		statuses:      make(map[string]model.Status),
		latest:        make(map[string]model.Order),
		routes:        make(map[string]trackedRoute),
	}
	if e.sink == nil {
		e.sink = notify.Discard{}
	}
	return e, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Stats is a point-in-time view of the engine's state.
type Stats struct {
	OrderSubscriptions int
	UserSubscriptions  int
	CachedStatuses     int
	TrackedRoutes      int
	ActiveWorkers      int
}

// Stats reports registry and cache sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		OrderSubscriptions: len(e.orders),
		UserSubscriptions:  len(e.users),
		CachedStatuses:     len(e.statuses),
		TrackedRoutes:      len(e.routes),
	}
	e.mu.Unlock()
	s.ActiveWorkers = e.workers.Active()
	return s
}

// Cleanup detaches every listener and clears both registries, the status
// cache and tracked routes. It is idempotent and does not wait for
// in-flight workers; results they produce afterwards are discarded, and a
// snapshot already being decoded for a detached listener neither writes the
// cache nor reaches its callback.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	handles := make([]*Handle, 0, len(e.orders)+len(e.users))
	for _, h := range e.orders {
		handles = append(handles, h)
	}
	for _, h := range e.users {
		handles = append(handles, h)
	}
	e.orders = make(map[string]*Handle)
	e.users = make(map[string]*Handle)
	e.statuses = make(map[string]model.Status)
	e.latest = make(map[string]model.Order)
	e.routes = make(map[string]trackedRoute)
	e.epoch++
	e.mu.Unlock()

	for _, h := range handles {
		h.close()
	}
	metrics.SetActiveSubscriptions(string(KindOrder), 0)
	metrics.SetActiveSubscriptions(string(KindUser), 0)
	metrics.SetCachedStatuses(0)

	if len(handles) > 0 {
		e.logger.Info().Int("listeners", len(handles)).Msg("realtime state cleared")
	}
}

// Drain waits for in-flight notification and route workers.
func (e *Engine) Drain(ctx context.Context) error {
	return e.workers.Wait(ctx)
}

// Shutdown runs Cleanup, stops accepting subscriptions and waits for
// workers.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.Cleanup()
	return e.workers.CloseAndWait(ctx)
}
