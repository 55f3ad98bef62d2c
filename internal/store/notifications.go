package store

import (
	"context"
	"fmt"
)

// NotificationExists reports whether the (need, member) pair has already
// been notified.
func (s *Store) NotificationExists(ctx context.Context, needID, memberID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notifications WHERE need_id = $1 AND member_id = $2
		 )`,
		needID, memberID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("notification exists (%s, %s): %w", needID, memberID, err)
	}
	return exists, nil
}

// RecordNotification inserts the notification row after the provider
// accepted the push. The UNIQUE (need_id, member_id) constraint makes this
// the durable idempotency boundary: a concurrent or retried insert for the
// same pair is a no-op, reported by the false return.
func (s *Store) RecordNotification(ctx context.Context, needID, memberID, whyRelevant string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (need_id, member_id, why_relevant, sent_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (need_id, member_id) DO NOTHING`,
		needID, memberID, whyRelevant,
	)
	if err != nil {
		return false, fmt.Errorf("record notification (%s, %s): %w", needID, memberID, err)
	}
	return tag.RowsAffected() == 1, nil
}
