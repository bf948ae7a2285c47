// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS order_status (
	order_id   TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists statuses in a shared database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects with dsn, verifies connectivity and creates the
// table when missing.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("statusstore: postgres parse dsn: %w", err)
	}
	pcfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 1)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("statusstore: postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("statusstore: postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("statusstore: postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM order_status WHERE order_id = $1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound(orderID)
	}
	if err != nil {
		return "", fmt.Errorf("statusstore: postgres get %s: %w", orderID, err)
	}
	return status, nil
}

func (s *PostgresStore) Put(ctx context.Context, orderID, status string) error {
	if err := checkKey(orderID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_status (order_id, status, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (order_id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("statusstore: postgres put %s: %w", orderID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, orderID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM order_status WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("statusstore: postgres delete %s: %w", orderID, err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT order_id, status FROM order_status`)
	if err != nil {
		return nil, fmt.Errorf("statusstore: postgres scan: %w", err)
	}
	out := make(map[string]string)
	var id, status string
	_, err = pgx.ForEachRow(rows, []any{&id, &status}, func() error {
		out[id] = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("statusstore: postgres scan: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
