// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health aggregates component readiness checks for the ops surface.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/resilience"
	"github.com/ManuGH/ordertrack/internal/statusstore"
)

const defaultCheckTimeout = 2 * time.Second

// Status is the outcome of one check or of the whole probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one component's outcome.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is a single readiness check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs every registered checker per probe. Degraded components keep
// the service ready; any unhealthy one does not.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{timeout: defaultCheckTimeout, now: time.Now}
}

// Register adds checkers.
func (m *Manager) Register(checkers ...Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checkers...)
}

// Ready runs all checks concurrently, each bounded by the check timeout.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Status: StatusHealthy, Timestamp: m.now()}
	if len(checkers) == 0 {
		return resp
	}

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = c.Check(cctx)
		}()
	}
	wg.Wait()

	resp.Checks = make(map[string]CheckResult, len(checkers))
	for i, c := range checkers {
		r := results[i]
		resp.Checks[c.Name()] = r
		switch r.Status {
		case StatusUnhealthy:
			resp.Ready = false
			resp.Status = StatusUnhealthy
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

// ServeReady answers 200 when ready and 503 otherwise.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), log.WithComponent("readiness"))
	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

type funcChecker struct {
	name string
	fn   func(context.Context) error
}

// CheckFunc adapts fn; a non-nil error is unhealthy.
func CheckFunc(name string, fn func(context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

func (c funcChecker) Name() string { return c.name }

func (c funcChecker) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// storeProbeKey is never written; reading it exercises the backend.
const storeProbeKey = "__readiness_probe__"

// StoreChecker reports the status store unhealthy when a read fails for
// any reason other than a missing key.
func StoreChecker(s statusstore.Store) Checker {
	return CheckFunc("status_store", func(ctx context.Context) error {
		_, err := s.Get(ctx, storeProbeKey)
		if err == nil || errors.Is(err, statusstore.ErrNotFound) {
			return nil
		}
		return err
	})
}

type breakerChecker struct {
	name  string
	state func() resilience.State
}

// BreakerChecker reports an open or half-open breaker as degraded. The
// service keeps working without the guarded dependency.
func BreakerChecker(name string, state func() resilience.State) Checker {
	return breakerChecker{name: name, state: state}
}

func (c breakerChecker) Name() string { return c.name }

func (c breakerChecker) Check(context.Context) CheckResult {
	switch st := c.state(); st {
	case resilience.StateOpen, resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(st)}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}
