// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps statuses in process memory. Not durable; intended for
// tests and local iteration.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[orderID]
	if !ok {
		return "", notFound(orderID)
	}
	return v, nil
}

func (s *MemoryStore) Put(_ context.Context, orderID, status string) error {
	if err := checkKey(orderID); err != nil {
		return err
	}
	s.mu.Lock()
	s.m[orderID] = status
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	delete(s.m, orderID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) All(context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m), nil
}

func (s *MemoryStore) Close() error { return nil }
