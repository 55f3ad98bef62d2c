package store

import (
	"context"
	"fmt"
)

// TryReserve atomically consumes one notification slot from a member's
// weekly budget. Check-and-increment happens in a single conditional UPDATE
// so two concurrent matching runs can never jointly push a member over the
// cap. Returns false when the cap is already reached.
//
// A process crash between TryReserve and the notification row being recorded
// leaves the counter one above the member's rows until the weekly reset. The
// gap only under-notifies and is accepted, like the sent-but-unrecorded gap
// documented on push.Dispatcher.
func (s *Store) TryReserve(ctx context.Context, memberID string, weeklyCap int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE members
		 SET notification_count_this_week = notification_count_this_week + 1
		 WHERE id = $1
		   AND notification_count_this_week < $2`,
		memberID, weeklyCap,
	)
	if err != nil {
		return false, fmt.Errorf("reserve notification slot for %s: %w", memberID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// Release gives a reserved slot back. Used when a reservation ends up backed
// by no new notification row (provider failure, or the pair had already been
// notified), keeping the counter equal to the member's notification rows.
func (s *Store) Release(ctx context.Context, memberID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE members
		 SET notification_count_this_week = notification_count_this_week - 1
		 WHERE id = $1
		   AND notification_count_this_week > 0`,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("release notification slot for %s: %w", memberID, err)
	}
	return nil
}

// ResetAllCounts zeroes every member's weekly counter. It is idempotent and
// invoked once per weekly boundary by the scheduler or the reset command.
func (s *Store) ResetAllCounts(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE members
		 SET notification_count_this_week = 0
		 WHERE notification_count_this_week > 0`,
	)
	if err != nil {
		return 0, fmt.Errorf("reset weekly notification counts: %w", err)
	}
	return tag.RowsAffected(), nil
}
