// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notify delivers user-facing notifications to one or more sinks.
// Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/rs/zerolog"
)

// Metadata keys attached to order status notifications.
const (
	MetaOrderID   = "order_id"
	MetaOldStatus = "old_status"
	MetaNewStatus = "new_status"
	MetaType      = "type"

	TypeOrderStatus = "order_status"
)

// ErrUnknownSink is returned by New for an unrecognised sink name.
var ErrUnknownSink = errors.New("notify: unknown sink")

// Sink delivers a single notification.
type Sink interface {
	Notify(ctx context.Context, title, body string, metadata map[string]string) error
}

// Named is implemented by sinks that report their own metric label.
type Named interface {
	Name() string
}

func nameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, title, body string, metadata map[string]string) error

func (f SinkFunc) Notify(ctx context.Context, title, body string, metadata map[string]string) error {
	return f(ctx, title, body, metadata)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink that logs at info level.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.WithComponent("notify.log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(ctx context.Context, title, body string, metadata map[string]string) error {
	logger := log.WithContext(ctx, s.logger)
	ev := logger.Info().
		Str(log.FieldEvent, "notify.delivered").
		Str("title", title).
		Str("body", body)
	for _, k := range slices.Sorted(maps.Keys(metadata)) {
		ev = ev.Str(k, metadata[k])
	}
	ev.Msg("notification")
	return nil
}

// Multi fans a notification out to every sink in order. A failing sink does
// not stop the others; the joined error names each failure.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Sinks returns the combined sinks in delivery order.
func (m *Multi) Sinks() []Sink { return append([]Sink(nil), m.sinks...) }

func (m *Multi) Notify(ctx context.Context, title, body string, metadata map[string]string) error {
	var errs []error
	for _, s := range m.sinks {
		name := nameOf(s)
		err := s.Notify(ctx, title, body, metadata)
		metrics.RecordNotification(name, err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Name() string { return "discard" }

func (Discard) Notify(context.Context, string, string, map[string]string) error { return nil }
