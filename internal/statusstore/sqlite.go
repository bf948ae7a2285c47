// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/ordertrack/internal/persistence/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE order_status (
		order_id   TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// SqliteStore persists statuses in a single SQLite table.
type SqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSqliteStore opens (or creates) the database at path and migrates it.
func OpenSqliteStore(ctx context.Context, path string) (*SqliteStore, error) {
	if path == "" {
		return nil, errors.New("statusstore: sqlite backend needs a path")
	}
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SqliteStore{db: db, now: time.Now}, nil
}

func (s *SqliteStore) Get(ctx context.Context, orderID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM order_status WHERE order_id = ?`, orderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(orderID)
	}
	if err != nil {
		return "", fmt.Errorf("statusstore: sqlite get %s: %w", orderID, err)
	}
	return status, nil
}

func (s *SqliteStore) Put(ctx context.Context, orderID, status string) error {
	if err := checkKey(orderID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_status (order_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		orderID, status, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("statusstore: sqlite put %s: %w", orderID, err)
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, orderID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM order_status WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("statusstore: sqlite delete %s: %w", orderID, err)
	}
	return nil
}

func (s *SqliteStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, status FROM order_status`)
	if err != nil {
		return nil, fmt.Errorf("statusstore: sqlite scan: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("statusstore: sqlite scan: %w", err)
		}
		out[id] = status
	}
	return out, rows.Err()
}

func (s *SqliteStore) Close() error { return s.db.Close() }
