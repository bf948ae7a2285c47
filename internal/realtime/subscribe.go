// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/domain/order/model"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/google/uuid"
)

// Kind distinguishes single-order from per-user list subscriptions.
type Kind string

const (
	KindOrder Kind = "order"
	KindUser  Kind = "user"
)

// Handle owns exactly one remote listener for one key. Once closed it never
// delivers again.
type Handle struct {
	Token string
	Kind  Kind
	Key   string

	closed atomic.Bool
	mu     sync.Mutex
	sub    changestream.Subscription
}

func newHandle(kind Kind, key string) *Handle {
	return &Handle{Token: uuid.NewString(), Kind: kind, Key: key}
}

// Closed reports whether the handle was torn down.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// attach binds the provider subscription. It reports false when the handle
// was closed first, in which case the caller must release sub.
func (h *Handle) attach(sub changestream.Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.sub = sub
	return true
}

func (h *Handle) close() {
	h.closed.Store(true)
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Update is delivered for every event on a single-order subscription.
// Order is nil when the document does not exist.
type Update struct {
	OrderID string
	Order   *model.Order
	Err     error
}

// ListUpdate is delivered for every change of a user's order list, in the
// provider's order. Err joins per-document decode failures; the remaining
// orders are still delivered.
type ListUpdate struct {
	UserID string
	Orders []model.Order
	Err    error
}

func (e *Engine) registry(kind Kind) map[string]*Handle {
	if kind == KindUser {
		return e.users
	}
	return e.orders
}

// install registers h for its key and returns the handle it replaced.
func (e *Engine) install(h *Handle) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return nil, ErrClosed
	}
	reg := e.registry(h.Kind)
	old := reg[h.Key]
	reg[h.Key] = h
	metrics.SetActiveSubscriptions(string(h.Kind), len(reg))
	return old, nil
}

// uninstall removes h if it is still the registered handle for its key.
func (e *Engine) uninstall(h *Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg := e.registry(h.Kind)
	if reg[h.Key] != h {
		return false
	}
	delete(reg, h.Key)
	metrics.SetActiveSubscriptions(string(h.Kind), len(reg))
	return true
}

// currentLocked reports whether h is open and still registered for its
// key. e.mu must be held.
func (e *Engine) currentLocked(h *Handle) bool {
	return !h.closed.Load() && e.registry(h.Kind)[h.Key] == h
}

// live reports whether callbacks for h may still run.
func (e *Engine) live(h *Handle) bool {
	e.mu.Lock()
	current := e.currentLocked(h)
	e.mu.Unlock()
	if !current {
		metrics.IncStaleCallback(string(h.Kind))
	}
	return current
}

// SubscribeToOrder watches orders/{orderID}. An existing subscription for
// the same order is torn down before the new listener is registered.
func (e *Engine) SubscribeToOrder(orderID string, onUpdate func(Update)) (*Handle, error) {
	if orderID == "" {
		return nil, ErrEmptyKey
	}
	h := newHandle(KindOrder, orderID)
	path := changestream.DocPath(ordersCollection, orderID)
	logger := e.logger.With().Str(log.FieldOrderID, orderID).Str(log.FieldHandle, h.Token).Logger()

	handler := changestream.HandlerFuncs{
		Snapshot: func(s changestream.Snapshot) {
			if !e.live(h) {
				return
			}
			if !s.Exists {
				onUpdate(Update{OrderID: orderID})
				return
			}
			o, err := model.DecodeOrder(orderID, s.Data)
			if err != nil {
				logger.Warn().Err(err).Msg("undecodable order snapshot")
				if e.live(h) {
					onUpdate(Update{OrderID: orderID, Err: &DecodeError{OrderID: orderID, Err: err}})
				}
				return
			}
			if err := o.Validate(); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "order.invalid").Msg("order snapshot violates invariants")
			}
			if e.applyStatus(context.Background(), h, orderID, &o) == OutcomeStale || !e.live(h) {
				return
			}
			onUpdate(Update{OrderID: orderID, Order: &o})
		},
		Error: func(err error) {
			if !e.live(h) {
				return
			}
			metrics.IncTransportError(string(KindOrder))
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("order watch failed")
			onUpdate(Update{OrderID: orderID, Err: &TransportError{Path: path, Err: err}})
		},
	}

	if err := e.start(h, path, func() (changestream.Subscription, error) {
		return e.provider.Watch(path, handler)
	}); err != nil {
		return nil, err
	}
	logger.Debug().Msg("subscribed to order")
	return h, nil
}

// SubscribeToUserOrders watches the orders placed by userID, newest first.
func (e *Engine) SubscribeToUserOrders(userID string, onUpdate func(ListUpdate)) (*Handle, error) {
	if userID == "" {
		return nil, ErrEmptyKey
	}
	h := newHandle(KindUser, userID)
	q := changestream.Query{
		Collection: ordersCollection,
		Field:      buyerField,
		Value:      userID,
		OrderBy:    createdAtField,
		Descending: true,
	}
	logger := e.logger.With().Str(log.FieldUserID, userID).Str(log.FieldHandle, h.Token).Logger()

	handler := changestream.QueryHandlerFuncs{
		Results: func(results []changestream.Snapshot) {
			if !e.live(h) {
				return
			}
			orders := make([]model.Order, 0, len(results))
			var errs []error
			for _, s := range results {
				if !s.Exists {
					continue
				}
				o, err := model.DecodeOrder(s.ID(), s.Data)
				if err != nil {
					errs = append(errs, &DecodeError{OrderID: s.ID(), Err: err})
					continue
				}
				if err := o.Validate(); err != nil {
					logger.Warn().Err(err).Str(log.FieldOrderID, o.ID).Str(log.FieldEvent, "order.invalid").
						Msg("order snapshot violates invariants")
				}
				orders = append(orders, o)
			}
			for i := range orders {
				if e.applyStatus(context.Background(), h, orders[i].ID, &orders[i]) == OutcomeStale {
					return
				}
			}
			if len(errs) > 0 {
				logger.Warn().Int("undecodable", len(errs)).Msg("skipped undecodable orders in list")
			}
			if !e.live(h) {
				return
			}
			onUpdate(ListUpdate{UserID: userID, Orders: orders, Err: errors.Join(errs...)})
		},
		Error: func(err error) {
			if !e.live(h) {
				return
			}
			metrics.IncTransportError(string(KindUser))
			logger.Warn().Err(err).Msg("order list watch failed")
			onUpdate(ListUpdate{UserID: userID, Err: &TransportError{Path: q.Key(), Err: err}})
		},
	}

	if err := e.start(h, q.Key(), func() (changestream.Subscription, error) {
		return e.provider.WatchQuery(q, handler)
	}); err != nil {
		return nil, err
	}
	logger.Debug().Msg("subscribed to user orders")
	return h, nil
}

// start installs h, tears down its predecessor and only then registers the
// provider listener.
func (e *Engine) start(h *Handle, target string, watch func() (changestream.Subscription, error)) error {
	old, err := e.install(h)
	if err != nil {
		return err
	}
	if old != nil {
		old.close()
	}

	sub, err := watch()
	if err != nil {
		e.uninstall(h)
		h.closed.Store(true)
		metrics.IncTransportError(string(h.Kind))
		return &TransportError{Path: target, Err: fmt.Errorf("watch: %w", err)}
	}
	if !h.attach(sub) {
		sub.Unsubscribe()
	}
	return nil
}

// UnsubscribeFromOrder detaches the order's listener. Idempotent.
func (e *Engine) UnsubscribeFromOrder(orderID string) {
	e.unsubscribe(KindOrder, orderID)
}

// UnsubscribeFromUserOrders detaches the user's list listener. Idempotent.
func (e *Engine) UnsubscribeFromUserOrders(userID string) {
	e.unsubscribe(KindUser, userID)
}

func (e *Engine) unsubscribe(kind Kind, key string) {
	e.mu.Lock()
	reg := e.registry(kind)
	h := reg[key]
	delete(reg, key)
	n := len(reg)
	e.mu.Unlock()

	if h == nil {
		return
	}
	metrics.SetActiveSubscriptions(string(kind), n)
	h.close()
}

// Unsubscribe detaches h if it is still the registered handle for its key.
func (e *Engine) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	e.uninstall(h)
	h.close()
}
