// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package directions

import (
	"context"
	"errors"

	"github.com/ManuGH/ordertrack/internal/resilience"
)

var (
	// ErrUpstreamUnavailable covers transport failures and 5xx answers.
	ErrUpstreamUnavailable = errors.New("directions: upstream unavailable")
	// ErrUpstreamBadResponse covers undecodable payloads and rejected requests.
	ErrUpstreamBadResponse = errors.New("directions: bad upstream response")
	// ErrNoRoute means the upstream found no route between the points.
	ErrNoRoute = errors.New("directions: no route")
	// ErrRateLimited is returned when the local limiter or the upstream
	// refuses the request.
	ErrRateLimited = errors.New("directions: rate limited")
)

// Error carries the failing operation and upstream status next to the
// sentinel, so callers can both errors.Is and log detail.
type Error struct {
	Op       string
	Status   string
	Sentinel error
	Err      error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Sentinel.Error()
	if e.Status != "" {
		msg += " (status " + e.Status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

func newError(op, status string, sentinel, err error) *Error {
	return &Error{Op: op, Status: status, Sentinel: sentinel, Err: err}
}

// outcome maps an error to its metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

// countsAgainstBreaker keeps caller-side outcomes from opening the circuit.
func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, ErrNoRoute) && !errors.Is(err, context.Canceled)
}
