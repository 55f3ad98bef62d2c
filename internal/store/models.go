package store

import "time"

// Need mirrors the needs table columns the matching pipeline reads. A need
// is created on organization approval (outside this service) and is
// read-only here, except for best-effort persistence of freshly geocoded,
// already coarsened coordinates.
type Need struct {
	ID             string
	OrganizationID string
	Title          string
	Description    string
	City           string
	Region         string
	State          string
	Latitude       *float64
	Longitude      *float64
	Embedding      []float32
	ApprovedAt     time.Time
}

// HasLocation reports whether the need carries resolved coordinates.
func (n *Need) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// Member mirrors the members table columns this service touches. Location is
// always coarsened; the weekly notification counter is only ever mutated
// through the throttle queries in throttle.go.
type Member struct {
	ID                        string
	PushToken                 string
	SearchableText            string
	Embedding                 []float32
	Latitude                  *float64
	Longitude                 *float64
	State                     string
	Active                    bool
	NotificationCountThisWeek int
}

// HasLocation reports whether the member shared a coarse location.
func (m *Member) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}
