// Package store provides PostgreSQL-backed persistence for members, needs,
// matching runs and notifications.
//
// Two constraints live in the schema rather than in application code, because
// they must hold across processes and crashes:
//
//   - notifications has UNIQUE (need_id, member_id), the durable
//     de-duplication boundary for dispatch;
//   - matching_runs has UNIQUE (need_id, approved_at), the run claim that
//     de-duplicates at-least-once triggers.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// Store wraps the connection pool with the queries the matching pipeline
// needs. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
