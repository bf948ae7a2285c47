// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"errors"

	"github.com/ManuGH/ordertrack/internal/metrics"
)

// instrumented records every call in the store metrics. A miss is not an
// error for metric purposes.
type instrumented struct {
	backend string
	next    Store
}

// Instrument wraps s so its operations are counted under backend.
func Instrument(backend string, s Store) Store {
	return &instrumented{backend: backend, next: s}
}

func (i *instrumented) record(op string, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOp(i.backend, op, err)
}

func (i *instrumented) Get(ctx context.Context, orderID string) (string, error) {
	v, err := i.next.Get(ctx, orderID)
	i.record("get", err)
	return v, err
}

func (i *instrumented) Put(ctx context.Context, orderID, status string) error {
	err := i.next.Put(ctx, orderID, status)
	i.record("put", err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, orderID string) error {
	err := i.next.Delete(ctx, orderID)
	i.record("delete", err)
	return err
}

func (i *instrumented) All(ctx context.Context) (map[string]string, error) {
	m, err := i.next.All(ctx)
	i.record("all", err)
	return m, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
