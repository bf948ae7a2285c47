// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_status_transitions_total",
		Help: "Observed order status transitions by old and new status",
	}, []string{"from", "to", "allowed"})

	baselinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordertrack_status_baselines_total",
		Help: "First observations of an order that established a cache baseline",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_notifications_total",
		Help: "Transition notifications by sink and outcome",
	}, []string{"sink", "outcome"}) // outcome=sent|failed

	activeSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ordertrack_active_subscriptions",
		Help: "Live change-stream subscriptions by kind",
	}, []string{"kind"}) // kind=order|user

	transportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_transport_errors_total",
		Help: "Transport errors forwarded to subscribers by kind",
	}, []string{"kind"})

	staleCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_stale_callbacks_total",
		Help: "Callbacks ignored because their subscription was replaced or closed",
	}, []string{"kind"})

	cachedStatuses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordertrack_cached_statuses",
		Help: "Entries in the last-known status cache",
	})
)

// RecordTransition counts a detected status change.
func RecordTransition(from, to string, allowed bool) {
	a := "false"
	if allowed {
		a = "true"
	}
	transitionsTotal.WithLabelValues(from, to, a).Inc()
}

// RecordBaseline counts a first observation that produced no notification.
func RecordBaseline() {
	baselinesTotal.Inc()
}

// RecordNotification counts a dispatch attempt outcome.
func RecordNotification(sink string, ok bool) {
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	notificationsTotal.WithLabelValues(sink, outcome).Inc()
}

// SetActiveSubscriptions sets the live subscription gauge for a kind.
func SetActiveSubscriptions(kind string, n int) {
	activeSubscriptions.WithLabelValues(kind).Set(float64(n))
}

// IncTransportError counts a transport error forwarded upward.
func IncTransportError(kind string) {
	transportErrorsTotal.WithLabelValues(kind).Inc()
}

// IncStaleCallback counts a late callback that was ignored.
func IncStaleCallback(kind string) {
	staleCallbacksTotal.WithLabelValues(kind).Inc()
}

// SetCachedStatuses sets the status cache size gauge.
func SetCachedStatuses(n int) {
	cachedStatuses.Set(float64(n))
}
