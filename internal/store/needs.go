package store

import (
	"context"
	"fmt"
)

// GetNeed loads a single need by id.
func (s *Store) GetNeed(ctx context.Context, needID string) (*Need, error) {
	var n Need
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, title, description,
		        COALESCE(city, ''), COALESCE(region, ''), state,
		        latitude, longitude, embedding, approved_at
		 FROM needs
		 WHERE id = $1`,
		needID,
	).Scan(
		&n.ID, &n.OrganizationID, &n.Title, &n.Description,
		&n.City, &n.Region, &n.State,
		&n.Latitude, &n.Longitude, &n.Embedding, &n.ApprovedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getNeed %s: %w", needID, err)
	}
	return &n, nil
}

// SetNeedLocation persists already coarsened coordinates for a need that was
// geocoded at run start, so later re-triggers skip the provider round trip.
func (s *Store) SetNeedLocation(ctx context.Context, needID string, lat, lng float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE needs
		 SET latitude = $1, longitude = $2, updated_at = NOW()
		 WHERE id = $3 AND latitude IS NULL`,
		lat, lng, needID,
	)
	if err != nil {
		return fmt.Errorf("setNeedLocation %s: %w", needID, err)
	}
	return nil
}
