// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/ManuGH/ordertrack/internal/directions"
	"github.com/ManuGH/ordertrack/internal/domain/order/lifecycle"
	"github.com/ManuGH/ordertrack/internal/domain/order/model"
	"github.com/ManuGH/ordertrack/internal/geo/polyline"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/ManuGH/ordertrack/internal/notify"
	"github.com/ManuGH/ordertrack/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome classifies what HandleStatusChange did with a snapshot.
type Outcome int

const (
	// OutcomeIgnored means there was no order to compare.
	OutcomeIgnored Outcome = iota
	// OutcomeBaseline means the order was seen for the first time.
	OutcomeBaseline
	// OutcomeUnchanged means the cached status already matched.
	OutcomeUnchanged
	// OutcomeTransition means a notification was dispatched.
	OutcomeTransition
	// OutcomeStale means the snapshot arrived for a detached listener.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBaseline:
		return "baseline"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeTransition:
		return "transition"
	case OutcomeStale:
		return "stale"
	default:
		return "ignored"
	}
}

// HandleStatusChange compares the order's status with the cached one before
// writing it. A cached, different status yields exactly one transition
// notification; a first sighting only records the baseline.
func (e *Engine) HandleStatusChange(ctx context.Context, orderID string, order *model.Order) Outcome {
	return e.applyStatus(ctx, nil, orderID, order)
}

// applyStatus is HandleStatusChange on behalf of h. When h is no longer the
// registered handle for its key the snapshot is dropped without touching
// the cache; the check and the write share one critical section.
func (e *Engine) applyStatus(ctx context.Context, h *Handle, orderID string, order *model.Order) Outcome {
	if order == nil || orderID == "" {
		return OutcomeIgnored
	}
	next := order.StatusProgress
	latest := *order
	latest.DailyDeliveryLogs = slices.Clone(order.DailyDeliveryLogs)

	e.mu.Lock()
	if h != nil && !e.currentLocked(h) {
		e.mu.Unlock()
		metrics.IncStaleCallback(string(h.Kind))
		return OutcomeStale
	}
	prev, had := e.statuses[orderID]
	e.statuses[orderID] = next
	e.latest[orderID] = latest
	cached := len(e.statuses)
	e.mu.Unlock()
	metrics.SetCachedStatuses(cached)

	outcome := OutcomeTransition
	switch {
	case !had:
		outcome = OutcomeBaseline
	case prev == next:
		outcome = OutcomeUnchanged
	}

	logger := e.logger.With().Str(log.FieldOrderID, orderID).Logger()
	switch outcome {
	case OutcomeBaseline:
		metrics.RecordBaseline()
		logger.Debug().Str(log.FieldNewStatus, string(next)).Msg("status baseline recorded")
		e.persist(ctx, orderID, next)
	case OutcomeTransition:
		decision := lifecycle.DecisionFor(order, prev, next)
		metrics.RecordTransition(string(prev), string(next), decision.Allowed)
		ev := logger.Info()
		if !decision.Allowed {
			ev = logger.Warn().Str("reason", decision.Reason)
		}
		ev.Str(log.FieldEvent, "realtime.transition").
			Str(log.FieldOldStatus, string(prev)).
			Str(log.FieldNewStatus, string(next)).
			Bool("allowed", decision.Allowed).
			Msg("order status changed")
		e.dispatch(ctx, orderID, prev, next)
		e.persist(ctx, orderID, next)
	}

	e.trackRoute(ctx, orderID, order)
	return outcome
}

// CachedOrderStatus returns the last status seen for orderID.
func (e *Engine) CachedOrderStatus(orderID string) (model.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.statuses[orderID]
	return s, ok
}

// LatestOrder returns the last snapshot observed for orderID through a
// subscription or HandleStatusChange.
func (e *Engine) LatestOrder(orderID string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.latest[orderID]
	return o, ok
}

// CacheOrderStatus seeds the cache without touching listeners or the store.
func (e *Engine) CacheOrderStatus(orderID string, status model.Status) {
	if orderID == "" {
		return
	}
	e.mu.Lock()
	e.statuses[orderID] = status
	n := len(e.statuses)
	e.mu.Unlock()
	metrics.SetCachedStatuses(n)
}

// PrimeFromStore seeds the cache from the status store so transitions that
// happened while the process was down still notify. Entries already cached
// and unknown status strings are skipped. It returns the number seeded.
func (e *Engine) PrimeFromStore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	all, err := e.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("realtime: prime from store: %w", err)
	}

	seeded := 0
	e.mu.Lock()
	for id, raw := range all {
		status := model.ParseStatus(raw)
		if !status.Known() {
			continue
		}
		if _, ok := e.statuses[id]; ok {
			continue
		}
		e.statuses[id] = status
		seeded++
	}
	n := len(e.statuses)
	e.mu.Unlock()

	metrics.SetCachedStatuses(n)
	e.logger.Info().Int("seeded", seeded).Int("stored", len(all)).Msg("status cache primed")
	return seeded, nil
}

// persist writes through to the store. Failures are logged, never returned.
func (e *Engine) persist(ctx context.Context, orderID string, status model.Status) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()
	if err := e.store.Put(ctx, orderID, string(status)); err != nil {
		e.logger.Warn().Err(err).
			Str(log.FieldEvent, "store.write_failed").
			Str(log.FieldOrderID, orderID).
			Msg("status write-through failed")
	}
}

// dispatch sends the transition notification on a worker. Sink failures
// are logged and counted, never propagated.
func (e *Engine) dispatch(ctx context.Context, orderID string, prev, next model.Status) {
	title, body := lifecycle.TransitionMessage(prev, next)
	meta := map[string]string{
		notify.MetaOrderID:   orderID,
		notify.MetaOldStatus: string(prev),
		notify.MetaNewStatus: string(next),
		notify.MetaType:      notify.TypeOrderStatus,
	}
	base := log.ContextWithOrderID(context.WithoutCancel(ctx), orderID)

	started := e.workers.Go(func() {
		ctx, cancel := context.WithTimeout(base, e.notifyTimeout)
		defer cancel()
		ctx, span := e.tracer.Start(ctx, "realtime.notify",
			trace.WithAttributes(telemetry.TransitionAttributes(orderID, string(prev), string(next))...))
		defer span.End()

		if err := e.sink.Notify(ctx, title, body, meta); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Warn().Err(err).
				Str(log.FieldEvent, "notify.failed").
				Str(log.FieldOrderID, orderID).
				Str(log.FieldNewStatus, string(next)).
				Msg("transition notification failed")
		}
	})
	if !started {
		e.logger.Debug().Str(log.FieldOrderID, orderID).Msg("engine shutting down, notification skipped")
	}
}

func toCoordinate(p *model.LatLng) polyline.Coordinate {
	return polyline.Coordinate{Latitude: p.Lat, Longitude: p.Lng}
}

// trackRoute resolves the delivery route while an order is in Delivery.
// Each pair of endpoints is fetched once; results arriving after Cleanup or
// after the endpoints changed are discarded.
func (e *Engine) trackRoute(ctx context.Context, orderID string, o *model.Order) {
	if e.directions == nil {
		return
	}
	if o.StatusProgress != model.StatusDelivery || !o.HasRoute() {
		e.mu.Lock()
		delete(e.routes, orderID)
		e.mu.Unlock()
		return
	}

	origin, dest := toCoordinate(o.SellerLocation), toCoordinate(o.BuyerLocation)
	key := origin.String() + "|" + dest.String()

	e.mu.Lock()
	if tr, ok := e.routes[orderID]; ok && tr.key == key {
		e.mu.Unlock()
		return
	}
	e.routes[orderID] = trackedRoute{key: key}
	epoch := e.epoch
	e.mu.Unlock()

	base := log.ContextWithOrderID(context.WithoutCancel(ctx), orderID)
	e.workers.Go(func() {
		ctx, cancel := context.WithTimeout(base, e.routeTimeout)
		defer cancel()

		route, err := e.directions.Route(ctx, origin, dest)
		if err != nil {
			e.logger.Warn().Err(err).
				Str(log.FieldEvent, "route.failed").
				Str(log.FieldOrderID, orderID).
				Msg("route lookup failed")
			e.mu.Lock()
			if tr, ok := e.routes[orderID]; ok && tr.key == key && e.epoch == epoch {
				delete(e.routes, orderID)
			}
			e.mu.Unlock()
			return
		}

		e.mu.Lock()
		tr, ok := e.routes[orderID]
		current := ok && tr.key == key && e.epoch == epoch
		if current {
			e.routes[orderID] = trackedRoute{key: key, route: route, ready: true}
		}
		e.mu.Unlock()
		if !current {
			return
		}
		if e.onRoute != nil {
			e.onRoute(orderID, route)
		}
	})
}

// Route returns the resolved delivery route for an order in Delivery.
func (e *Engine) Route(orderID string) (directions.Route, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.routes[orderID]
	if !ok || !tr.ready {
		return directions.Route{}, false
	}
	return tr.route, true
}
