// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package changestream defines the push-based document change feed the
// realtime engine consumes, and the helpers its adapters share.
package changestream

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned when watching on a closed provider.
	ErrClosed = errors.New("changestream: provider closed")
	// ErrInvalidPath is returned for paths that are not "collection/id".
	ErrInvalidPath = errors.New("changestream: invalid document path")
)

// Snapshot is the state of one document at a point in time. Exists is false
// when the document was deleted or never created; Data is then nil.
type Snapshot struct {
	Path   string
	Exists bool
	Data   []byte
}

// ID returns the document id part of the path.
func (s Snapshot) ID() string {
	_, id, _ := SplitPath(s.Path)
	return id
}

// Handler receives events for a single document watch. Calls for one
// subscription are sequential and in delivery order.
type Handler interface {
	OnSnapshot(Snapshot)
	OnError(error)
}

// QueryHandler receives the full ordered result set on every change.
type QueryHandler interface {
	OnResults([]Snapshot)
	OnError(error)
}

// Subscription detaches a watch. Unsubscribe is idempotent and may be called
// from inside a callback; no callbacks start after it returns.
type Subscription interface {
	Unsubscribe()
}

// Provider is a source of document change events.
type Provider interface {
	Watch(path string, h Handler) (Subscription, error)
	WatchQuery(q Query, h QueryHandler) (Subscription, error)
	Close() error
}

// Writer publishes document state into a provider's backing store.
type Writer interface {
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// HandlerFuncs adapts plain functions to Handler.
type HandlerFuncs struct {
	Snapshot func(Snapshot)
	Error    func(error)
}

func (h HandlerFuncs) OnSnapshot(s Snapshot) {
	if h.Snapshot != nil {
		h.Snapshot(s)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// QueryHandlerFuncs adapts plain functions to QueryHandler.
type QueryHandlerFuncs struct {
	Results func([]Snapshot)
	Error   func(error)
}

func (h QueryHandlerFuncs) OnResults(r []Snapshot) {
	if h.Results != nil {
		h.Results(r)
	}
}

func (h QueryHandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// DocPath joins a collection and a document id.
func DocPath(collection, id string) string {
	return collection + "/" + id
}

// SplitPath splits "collection/id". Both parts must be non-empty and the id
// must not contain further separators.
func SplitPath(path string) (collection, id string, err error) {
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return collection, id, nil
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }
