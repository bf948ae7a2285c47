// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/ordertrack/internal/resilience"
	"github.com/ManuGH/ordertrack/internal/statusstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ statusstore.Store }

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("disk I/O error")
}

func stateOf(s resilience.State) func() resilience.State {
	return func() resilience.State { return s }
}

func TestReady_NoCheckers(t *testing.T) {
	resp := NewManager().Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReady_AggregatesStatuses(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantReady  bool
		wantStatus Status
	}{
		{
			name: "all healthy",
			checkers: []Checker{
				StoreChecker(statusstore.NewMemoryStore()),
				BreakerChecker("directions", stateOf(resilience.StateClosed)),
			},
			wantReady:  true,
			wantStatus: StatusHealthy,
		},
		{
			name: "open breaker degrades but stays ready",
			checkers: []Checker{
				StoreChecker(statusstore.NewMemoryStore()),
				BreakerChecker("notify_webhook", stateOf(resilience.StateOpen)),
			},
			wantReady:  true,
			wantStatus: StatusDegraded,
		},
		{
			name: "failing store is not ready",
			checkers: []Checker{
				StoreChecker(failingStore{}),
				BreakerChecker("directions", stateOf(resilience.StateHalfOpen)),
			},
			wantReady:  false,
			wantStatus: StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			m.Register(tt.checkers...)
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestReady_CheckSeesDeadline(t *testing.T) {
	m := NewManager()
	m.Register(CheckFunc("stream", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}))
	assert.True(t, m.Ready(context.Background()).Ready)
}

func TestServeReady(t *testing.T) {
	m := NewManager()
	m.Register(CheckFunc("stream", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	m.Register(CheckFunc("store", func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "down", body.Checks["store"].Error)
	assert.Equal(t, StatusHealthy, body.Checks["stream"].Status)
}
