// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package statusstore persists the last known status string per order so the
// transition cache survives restarts. It is a cache, not a source of truth.
package statusstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for an unknown order.
	ErrNotFound = errors.New("statusstore: not found")
	// ErrEmptyKey rejects blank order ids.
	ErrEmptyKey = errors.New("statusstore: empty order id")
)

// Store maps order ids to their last observed status.
type Store interface {
	Get(ctx context.Context, orderID string) (string, error)
	Put(ctx context.Context, orderID, status string) error
	Delete(ctx context.Context, orderID string) error
	All(ctx context.Context) (map[string]string, error)
	Close() error
}

func checkKey(orderID string) error {
	if orderID == "" {
		return ErrEmptyKey
	}
	return nil
}

func notFound(orderID string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, orderID)
}
