// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package directions looks up delivery routes between a seller and a buyer
// and decodes them into coordinates.
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/ordertrack/internal/cache"
	"github.com/ManuGH/ordertrack/internal/config"
	"github.com/ManuGH/ordertrack/internal/geo/polyline"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/ManuGH/ordertrack/internal/platform/httpx"
	"github.com/ManuGH/ordertrack/internal/resilience"
	"github.com/ManuGH/ordertrack/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	directionsPath  = "/maps/api/directions/json"
	maxResponseSize = 4 << 20
)

// Route is a decoded route. Encoded is the upstream overview polyline.
type Route struct {
	Encoded         string                `json:"encoded"`
	Points          []polyline.Coordinate `json:"points"`
	DistanceMeters  int                   `json:"distanceMeters"`
	DurationSeconds int                   `json:"durationSeconds"`
}

// Provider resolves a route between two points.
type Provider interface {
	Route(ctx context.Context, origin, destination polyline.Coordinate) (Route, error)
}

type apiResponse struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Routes       []apiRoute `json:"routes"`
}

type apiRoute struct {
	OverviewPolyline struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
	Legs []struct {
		Distance struct {
			Value int `json:"value"`
		} `json:"distance"`
		Duration struct {
			Value int `json:"value"`
		} `json:"duration"`
	} `json:"legs"`
}

// Client calls a Google-style directions endpoint. Lookups for the same pair
// of points are coalesced and cached.
type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	cacheTTL time.Duration

	http    *http.Client
	cache   cache.Cache[Route]
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithCache replaces the in-memory route cache.
func WithCache(c cache.Cache[Route]) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithBreaker replaces the circuit breaker built from config.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

// New builds a client from config. The caller owns Close.
func New(cfg config.DirectionsConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("directions: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  timeout,
		cacheTTL: cfg.CacheTTL,
		limiter:  rate.NewLimiter(limit, burst),
		tracer:   telemetry.Tracer("ordertrack/directions"),
		logger:   log.WithComponent("directions"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NewTracedClient(timeout, "directions")
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(metrics.BreakerDirections, cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailureClassifier(countsAgainstBreaker))
	}
	if c.cache == nil {
		if c.cacheTTL > 0 {
			c.cache = cache.NewMemory[Route](time.Minute)
		} else {
			c.cache = cache.NewNoOp[Route]()
		}
	}
	return c, nil
}

// Route returns the route from origin to destination.
func (c *Client) Route(ctx context.Context, origin, destination polyline.Coordinate) (Route, error) {
	o, d := formatPoint(origin), formatPoint(destination)
	key := o + "|" + d

	ctx, span := c.tracer.Start(ctx, "directions.Route")
	defer span.End()

	if r, ok := c.cache.Get(key); ok {
		span.SetAttributes(telemetry.RouteAttributes(o, d, true)...)
		metrics.RecordDirections("cache_hit")
		return r, nil
	}
	span.SetAttributes(telemetry.RouteAttributes(o, d, false)...)

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, o, d)
	})

	select {
	case <-ctx.Done():
		return Route{}, newError("route", "", ErrUpstreamUnavailable, ctx.Err())
	case res := <-ch:
		err := res.Err
		metrics.RecordDirections(outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(telemetry.ErrorAttributes(outcome(err))...)
			return Route{}, err
		}
		r := res.Val.(Route)
		span.SetAttributes(attribute.Int(telemetry.RoutePointsKey, len(r.Points)))
		return r, nil
	}
}

func (c *Client) fetch(ctx context.Context, origin, destination string) (Route, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Route{}, newError("route", "", ErrRateLimited, err)
	}

	var r Route
	err := c.breaker.Execute(func() error {
		var err error
		r, err = c.call(ctx, origin, destination)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Route{}, newError("route", "", resilience.ErrCircuitOpen, nil)
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("origin", origin).Str("destination", destination).Msg("directions lookup failed")
		return Route{}, err
	}

	metrics.ObserveRoutePoints(len(r.Points))
	if c.cacheTTL > 0 {
		c.cache.Set(origin+"|"+destination, r, c.cacheTTL)
	}
	return r, nil
}

func (c *Client) call(ctx context.Context, origin, destination string) (Route, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+directionsPath+"?"+q.Encode(), nil)
	if err != nil {
		return Route{}, newError("route", "", ErrUpstreamBadResponse, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveDirectionsLatency(time.Since(start))
	if err != nil {
		return Route{}, newError("route", "", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Route{}, newError("route", status, ErrRateLimited, nil)
	case resp.StatusCode >= 500:
		return Route{}, newError("route", status, ErrUpstreamUnavailable, nil)
	case resp.StatusCode != http.StatusOK:
		return Route{}, newError("route", status, ErrUpstreamBadResponse, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Route{}, newError("route", status, ErrUpstreamUnavailable, err)
	}
	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Route{}, newError("route", status, ErrUpstreamBadResponse, err)
	}
	return parse(payload)
}

func parse(payload apiResponse) (Route, error) {
	var detail error
	if payload.ErrorMessage != "" {
		detail = errors.New(payload.ErrorMessage)
	}
	switch payload.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Route{}, newError("route", payload.Status, ErrNoRoute, detail)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return Route{}, newError("route", payload.Status, ErrRateLimited, detail)
	case "UNKNOWN_ERROR":
		return Route{}, newError("route", payload.Status, ErrUpstreamUnavailable, detail)
	default:
		return Route{}, newError("route", payload.Status, ErrUpstreamBadResponse, detail)
	}
	if len(payload.Routes) == 0 {
		return Route{}, newError("route", payload.Status, ErrNoRoute, nil)
	}

	first := payload.Routes[0]
	points, err := polyline.Decode(first.OverviewPolyline.Points)
	if err != nil {
		return Route{}, newError("decode", payload.Status, ErrUpstreamBadResponse, err)
	}
	r := Route{Encoded: first.OverviewPolyline.Points, Points: points}
	for _, leg := range first.Legs {
		r.DistanceMeters += leg.Distance.Value
		r.DurationSeconds += leg.Duration.Value
	}
	return r, nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Close releases the route cache.
func (c *Client) Close() error {
	return c.cache.Close()
}

func formatPoint(p polyline.Coordinate) string {
	return fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
}
