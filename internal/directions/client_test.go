// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package directions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/ordertrack/internal/config"
	"github.com/ManuGH/ordertrack/internal/geo/polyline"
	"github.com/ManuGH/ordertrack/internal/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var (
	seller = polyline.Coordinate{Latitude: -6.2, Longitude: 106.81667}
	buyer  = polyline.Coordinate{Latitude: -6.17511, Longitude: 106.82715}
)

func okBody(points string) string {
	return fmt.Sprintf(`{"status":"OK","routes":[{"overview_polyline":{"points":%q},
		"legs":[{"distance":{"value":1200},"duration":{"value":300}},{"distance":{"value":800},"duration":{"value":120}}]}]}`, points)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*config.DirectionsConfig)) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DirectionsConfig{
		Enabled:          true,
		BaseURL:          srv.URL,
		APIKey:           "k",
		Timeout:          time.Second,
		BreakerThreshold: 2,
		BreakerReset:     time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, &hits
}

func TestRoute_DecodesOverviewPolyline(t *testing.T) {
	var query string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/directions/json", r.URL.Path)
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(okBody(samplePolyline)))
	}, nil)

	r, err := c.Route(context.Background(), seller, buyer)
	require.NoError(t, err)

	want := []polyline.Coordinate{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	if diff := cmp.Diff(want, r.Points, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, samplePolyline, r.Encoded)
	assert.Equal(t, 2000, r.DistanceMeters)
	assert.Equal(t, 420, r.DurationSeconds)
	assert.Contains(t, query, "origin=-6.20000%2C106.81667")
	assert.Contains(t, query, "destination=-6.17511%2C106.82715")
	assert.Contains(t, query, "key=k")
}

func TestRoute_CachesByPointPair(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody(samplePolyline)))
	}, func(cfg *config.DirectionsConfig) { cfg.CacheTTL = time.Minute })

	for range 3 {
		_, err := c.Route(context.Background(), seller, buyer)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := c.Route(context.Background(), buyer, seller)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRoute_CoalescesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(okBody(samplePolyline)))
	}, func(cfg *config.DirectionsConfig) { cfg.CacheTTL = time.Minute })

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Route(context.Background(), seller, buyer)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRoute_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"zero results", http.StatusOK, `{"status":"ZERO_RESULTS","routes":[]}`, ErrNoRoute},
		{"ok without routes", http.StatusOK, `{"status":"OK","routes":[]}`, ErrNoRoute},
		{"quota", http.StatusOK, `{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`, ErrRateLimited},
		{"denied", http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"bad key"}`, ErrUpstreamBadResponse},
		{"http 429", http.StatusTooManyRequests, ``, ErrRateLimited},
		{"http 503", http.StatusServiceUnavailable, ``, ErrUpstreamUnavailable},
		{"http 403", http.StatusForbidden, ``, ErrUpstreamBadResponse},
		{"malformed json", http.StatusOK, `{"status":`, ErrUpstreamBadResponse},
		{"malformed polyline", http.StatusOK, okBody("_p~iF~ps|U_"), ErrUpstreamBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := c.Route(context.Background(), seller, buyer)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var derr *Error
			require.True(t, errors.As(err, &derr))
			assert.NotEmpty(t, derr.Op)
		})
	}
}

func TestRoute_MalformedPolylineKeepsDecodeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody("_p~iF~ps|U_")))
	}, nil)

	_, err := c.Route(context.Background(), seller, buyer)
	assert.ErrorIs(t, err, polyline.ErrMalformed)
	var perr *polyline.DecodeError
	assert.True(t, errors.As(err, &perr))
}

func TestRoute_BreakerOpensOnUpstreamFailures(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	for range 2 {
		_, err := c.Route(context.Background(), seller, buyer)
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	}
	_, err := c.Route(context.Background(), seller, buyer)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRoute_NoRouteDoesNotOpenBreaker(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS"}`))
	}, nil)

	for range 4 {
		_, err := c.Route(context.Background(), seller, buyer)
		assert.ErrorIs(t, err, ErrNoRoute)
	}
	assert.Equal(t, int32(4), hits.Load())
	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}

func TestRoute_LocalRateLimit(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody(samplePolyline)))
	}, func(cfg *config.DirectionsConfig) {
		cfg.RatePerSecond = 0.001
		cfg.Burst = 1
	})

	_, err := c.Route(context.Background(), seller, buyer)
	require.NoError(t, err)
	_, err = c.Route(context.Background(), seller, buyer)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(config.DirectionsConfig{})
	assert.Error(t, err)
}

func TestStatic_StraightSegment(t *testing.T) {
	s := &Static{}
	r, err := s.Route(context.Background(), seller, buyer)
	require.NoError(t, err)
	require.Len(t, r.Points, 2)
	assert.InDelta(t, seller.Latitude, r.Points[0].Latitude, 1e-5)
	assert.InDelta(t, buyer.Longitude, r.Points[1].Longitude, 1e-5)
	assert.Equal(t, int64(1), s.Calls())
}
