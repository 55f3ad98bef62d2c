package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Run states stored in matching_runs.state.
const (
	RunStateRunning        = "RUNNING"
	RunStateMatchesFound   = "MATCHES_FOUND"
	RunStateNoMatchesFound = "NO_MATCHES_FOUND"
)

// staleRunAfter is how long a RUNNING claim holds before a crashed run may
// be reclaimed by a redelivered trigger.
const staleRunAfter = 10 * time.Minute

// ClaimRun atomically claims the matching run for (need, approval). The
// unique constraint on (need_id, approved_at) makes duplicate at-least-once
// triggers lose the claim; a terminal run is never reclaimed, while a
// RUNNING row older than the staleness window is taken over so a crashed
// process does not block the need forever.
func (s *Store) ClaimRun(ctx context.Context, needID string, approvedAt time.Time) (bool, error) {
	var claimed string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO matching_runs (need_id, approved_at, state, started_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (need_id, approved_at) DO UPDATE
		   SET state = $3, started_at = NOW(), notified_count = 0
		   WHERE matching_runs.state = $3
		     AND matching_runs.started_at < NOW() - $4::interval
		 RETURNING need_id`,
		needID, approvedAt, RunStateRunning, staleRunAfter.String(),
	).Scan(&claimed)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim run for need %s: %w", needID, err)
	}
	return true, nil
}

// CompleteRun records the terminal state and how many members were notified.
func (s *Store) CompleteRun(ctx context.Context, needID string, approvedAt time.Time, state string, notified int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE matching_runs
		 SET state = $1, notified_count = $2, completed_at = NOW()
		 WHERE need_id = $3 AND approved_at = $4`,
		state, notified, needID, approvedAt,
	)
	if err != nil {
		return fmt.Errorf("complete run for need %s: %w", needID, err)
	}
	return nil
}

// ReleaseRun drops a RUNNING claim so a later trigger may retry. Called when
// a run aborts before reaching a terminal event (retrieval unavailable).
func (s *Store) ReleaseRun(ctx context.Context, needID string, approvedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM matching_runs
		 WHERE need_id = $1 AND approved_at = $2 AND state = $3`,
		needID, approvedAt, RunStateRunning,
	)
	if err != nil {
		return fmt.Errorf("release run for need %s: %w", needID, err)
	}
	return nil
}
