// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/google/renameio/v2"
)

// FileStore keeps the whole map in memory and rewrites a JSON snapshot on
// every mutation. Writes are atomic and durable.
type FileStore struct {
	mu   sync.Mutex
	path string
	m    map[string]string
}

// OpenFileStore loads path if it exists. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("statusstore: file backend needs a path")
	}
	s := &FileStore{path: path, m: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("statusstore: create dir: %w", err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("statusstore: read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.m); err != nil {
			return nil, fmt.Errorf("statusstore: parse %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, orderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[orderID]
	if !ok {
		return "", notFound(orderID)
	}
	return v, nil
}

func (s *FileStore) Put(ctx context.Context, orderID, status string) error {
	if err := checkKey(orderID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[orderID]; ok && cur == status {
		return nil
	}
	prev, had := s.m[orderID]
	s.m[orderID] = status
	if err := s.flushLocked(ctx); err != nil {
		if had {
			s.m[orderID] = prev
		} else {
			delete(s.m, orderID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.m[orderID]
	if !ok {
		return nil
	}
	delete(s.m, orderID)
	if err := s.flushLocked(ctx); err != nil {
		s.m[orderID] = prev
		return err
	}
	return nil
}

func (s *FileStore) All(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.m), nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushLocked(ctx context.Context) error {
	logger := log.FromContext(ctx)

	data, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return fmt.Errorf("statusstore: encode: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("statusstore: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending status file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("statusstore: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("statusstore: replace %s: %w", s.path, err)
	}
	return nil
}
