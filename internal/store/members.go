package store

import (
	"context"
	"fmt"
)

// EligibleMembers returns every member in the given state who can still be
// notified this week: active, with a profile embedding, and under the weekly
// cap. The distance cutoff and similarity ranking are applied by the
// retriever, not here, so the filtering policy stays testable without a
// database.
func (s *Store) EligibleMembers(ctx context.Context, state string, weeklyCap int) ([]Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, push_token, COALESCE(searchable_text, ''), embedding,
		        latitude, longitude, state, active, notification_count_this_week
		 FROM members
		 WHERE active = true
		   AND embedding IS NOT NULL
		   AND state = $1
		   AND notification_count_this_week < $2`,
		state, weeklyCap,
	)
	if err != nil {
		return nil, fmt.Errorf("query eligible members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(
			&m.ID, &m.PushToken, &m.SearchableText, &m.Embedding,
			&m.Latitude, &m.Longitude, &m.State, &m.Active,
			&m.NotificationCountThisWeek,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}
