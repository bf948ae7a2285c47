// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/ordertrack/internal/directions"
	"github.com/ManuGH/ordertrack/internal/domain/order/lifecycle"
	"github.com/ManuGH/ordertrack/internal/domain/order/model"
	"github.com/ManuGH/ordertrack/internal/geo/polyline"
	"github.com/ManuGH/ordertrack/internal/health"
	"github.com/ManuGH/ordertrack/internal/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	pathHealth  = "/healthz"
	pathReady   = "/readyz"
	pathMetrics = "/metrics"
)

// StatusSource is the read side of the realtime engine the API exposes.
type StatusSource interface {
	CachedOrderStatus(orderID string) (model.Status, bool)
	LatestOrder(orderID string) (model.Order, bool)
	Route(orderID string) (directions.Route, bool)
	Stats() realtime.Stats
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// RateLimit is requests per minute per client IP on /v1; 0 disables it.
	RateLimit int
	// TracingService names otelhttp spans; empty disables request tracing.
	TracingService string
	// Stream, when set, is mounted at /v1/stream.
	Stream http.Handler
	// Readiness, when set, serves /readyz.
	Readiness *health.Manager
}

// NewRouter builds the ops HTTP surface.
func NewRouter(src StatusSource, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)

	r.Get(pathHealth, handleHealth(src))
	r.Method(http.MethodGet, pathMetrics, promhttp.Handler())
	if cfg.Readiness != nil {
		r.Get(pathReady, cfg.Readiness.ServeReady)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimit(cfg.RateLimit))
		}
		r.Get("/orders/{orderID}/status", handleOrderStatus(src))
		r.Get("/orders/{orderID}/route", handleOrderRoute(src))
		if cfg.Stream != nil {
			r.Method(http.MethodGet, "/stream", cfg.Stream)
		}
	})

	if cfg.TracingService != "" {
		return tracing(cfg.TracingService)(r)
	}
	return r
}

type healthResponse struct {
	Status             string `json:"status"`
	OrderSubscriptions int    `json:"orderSubscriptions"`
	UserSubscriptions  int    `json:"userSubscriptions"`
	CachedStatuses     int    `json:"cachedStatuses"`
	TrackedRoutes      int    `json:"trackedRoutes"`
}

func handleHealth(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s := src.Stats()
		writeJSON(w, http.StatusOK, healthResponse{
			Status:             "ok",
			OrderSubscriptions: s.OrderSubscriptions,
			UserSubscriptions:  s.UserSubscriptions,
			CachedStatuses:     s.CachedStatuses,
			TrackedRoutes:      s.TrackedRoutes,
		})
	}
}

type statusResponse struct {
	OrderID   string             `json:"orderId"`
	Status    model.Status       `json:"status"`
	StepIndex int                `json:"stepIndex"`
	Terminal  bool               `json:"terminal"`
	Summary   *lifecycle.Summary `json:"summary,omitempty"`
}

func handleOrderStatus(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		status, ok := src.CachedOrderStatus(orderID)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "no status observed for order")
			return
		}
		resp := statusResponse{
			OrderID:   orderID,
			Status:    status,
			StepIndex: lifecycle.StepIndex(status, model.OrderTypeUnknown, model.PackageUnknown),
			Terminal:  status.IsTerminal(),
		}
		// A primed status has no snapshot behind it until the first event.
		if o, ok := src.LatestOrder(orderID); ok && o.StatusProgress == status {
			summary := lifecycle.Summarize(&o, time.Now())
			resp.StepIndex = summary.CurrentIndex
			resp.Summary = &summary
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type routeResponse struct {
	OrderID string `json:"orderId"`
	directions.Route
	Bounds *routeBounds `json:"bounds,omitempty"`
}

type routeBounds struct {
	SouthWest polyline.Coordinate `json:"southWest"`
	NorthEast polyline.Coordinate `json:"northEast"`
}

func handleOrderRoute(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		route, ok := src.Route(orderID)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "no route resolved for order")
			return
		}
		resp := routeResponse{OrderID: orderID, Route: route}
		if sw, ne, ok := polyline.Bounds(route.Points); ok {
			resp.Bounds = &routeBounds{SouthWest: sw, NorthEast: ne}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
