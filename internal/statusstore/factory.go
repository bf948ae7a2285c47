// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"fmt"

	"github.com/ManuGH/ordertrack/internal/config"
)

// Open creates the configured backend wrapped with metrics. An empty
// backend selects memory.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}

	var (
		s   Store
		err error
	)
	switch backend {
	case "memory":
		s = NewMemoryStore()
	case "file":
		s, err = OpenFileStore(cfg.Path)
	case "sqlite":
		s, err = OpenSqliteStore(ctx, cfg.Path)
	case "badger":
		s, err = OpenBadgerStore(cfg.Path)
	case "redis":
		s, err = NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.KeyPrefix)
	case "postgres":
		s, err = OpenPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("statusstore: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(backend, s), nil
}
