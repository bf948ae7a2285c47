// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker component labels.
const (
	BreakerDirections = "directions"
	BreakerWebhook    = "notify_webhook"
)

// Outcomes of a call that passed the breaker.
const (
	BreakerCallSuccess = "success"
	BreakerCallFailure = "failure"
	// BreakerCallIgnored is an error the breaker's classifier does not count,
	// such as a 4xx from the push relay.
	BreakerCallIgnored = "ignored"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ordertrack_circuit_breaker_state",
		Help: "Upstream circuit breaker state by component (active state=1, others 0)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_circuit_breaker_trips_total",
		Help: "Transitions to open, by component and reason",
	}, []string{"component", "reason"})

	circuitBreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_circuit_breaker_rejected_total",
		Help: "Calls short-circuited while the breaker was open or probing",
	}, []string{"component"})

	circuitBreakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordertrack_circuit_breaker_calls_total",
		Help: "Calls that reached the upstream, by component and outcome",
	}, []string{"component", "outcome"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when circuit breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}

// RecordCircuitBreakerRejection counts a call refused without reaching the upstream.
func RecordCircuitBreakerRejection(component string) {
	circuitBreakerRejected.WithLabelValues(component).Inc()
}

// RecordCircuitBreakerCall counts a call that reached the upstream.
func RecordCircuitBreakerCall(component, outcome string) {
	circuitBreakerCalls.WithLabelValues(component, outcome).Inc()
}
