// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is matched by every TransportError.
	ErrTransport = errors.New("realtime: transport error")
	// ErrEmptyKey rejects subscriptions without an order or user id.
	ErrEmptyKey = errors.New("realtime: empty subscription key")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("realtime: engine shut down")
)

// TransportError wraps a failure reported by the change-stream provider.
// The engine forwards it to the listener and does not retry.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: watch %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// DecodeError reports a snapshot that could not be decoded into an order.
type DecodeError struct {
	OrderID string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("realtime: decode order %s: %v", e.OrderID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
