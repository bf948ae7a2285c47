// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	directionsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_directions_requests_total",
		Help: "Directions lookups by outcome",
	}, []string{"outcome"}) // outcome=success|cache_hit|no_route|rate_limited|circuit_open|error

	directionsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ordertrack_directions_request_duration_seconds",
		Help:    "Latency of upstream directions requests",
		Buckets: prometheus.DefBuckets,
	})

	routePoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ordertrack_route_points",
		Help:    "Number of decoded coordinates per route",
		Buckets: prometheus.ExponentialBuckets(2, 2, 10),
	})
)

// RecordDirections counts a directions lookup outcome.
func RecordDirections(outcome string) {
	directionsRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDirectionsLatency records the latency of one upstream call.
func ObserveDirectionsLatency(d time.Duration) {
	directionsDuration.Observe(d.Seconds())
}

// ObserveRoutePoints records the size of a decoded route.
func ObserveRoutePoints(n int) {
	routePoints.Observe(float64(n))
}
