// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_stream_events_total",
		Help: "Change-stream events delivered to listeners by provider and kind",
	}, []string{"provider", "kind"}) // kind=snapshot|not_found|error

	StreamDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_stream_dropped_total",
		Help: "Change-stream events dropped before delivery by provider and reason",
	}, []string{"provider", "reason"})
)

// IncStreamEvent records an event handed to a listener.
func IncStreamEvent(provider, kind string) {
	if provider == "" {
		provider = "unknown"
	}
	StreamEventsTotal.WithLabelValues(provider, kind).Inc()
}

// IncStreamDrop records an event that never reached its listener.
func IncStreamDrop(provider, reason string) {
	if provider == "" {
		provider = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	StreamDroppedTotal.WithLabelValues(provider, reason).Inc()
}
