// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ordertrack_status_store_ops_total",
	Help: "Status store operations by backend, op and outcome",
}, []string{"backend", "op", "outcome"})

// RecordStoreOp counts a status store call.
func RecordStoreOp(backend, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	storeOpsTotal.WithLabelValues(backend, op, outcome).Inc()
}
