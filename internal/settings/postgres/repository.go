// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

// Package postgres implements the settings repository on PostgreSQL.
package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/settings"
)

// Pool is the subset of *pgxpool.Pool the repository uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores settings in the settings table.
type Repository struct {
	pool Pool
}

// NewRepository creates a new Repository.
func NewRepository(pool Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the values of the requested keys that exist.
func (r *Repository) Get(ctx context.Context, keys []string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, oops.Code("SETTINGS_QUERY_FAILED").With("operation", "select settings").Wrap(err)
	}
	defer rows.Close()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, oops.Code("SETTINGS_SCAN_FAILED").With("operation", "scan setting").Wrap(err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SETTINGS_ROWS_ERROR").With("operation", "iterate settings").Wrap(err)
	}
	return out, nil
}

// Put upserts every value in one transaction, in key order.
func (r *Repository) Put(ctx context.Context, values map[string]string, now time.Time) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, key := range keys {
		_, err := tx.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, key, values[key], now)
		if err != nil {
			return oops.Code("SETTINGS_UPSERT_FAILED").With("key", key).Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ settings.Repository = (*Repository)(nil)
