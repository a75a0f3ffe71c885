package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrackingLog is one append-only position fix recorded while a trip is in an
// active status. Rows are never updated; out-of-order fixes are stored as
// received, not rejected.
type TrackingLog struct {
	ID         uuid.UUID `json:"id"`
	TripID     uuid.UUID `json:"trip_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed,omitempty"`   // km/h, optional
	Heading    *float64  `json:"heading,omitempty"` // degrees clockwise from north, optional
	RecordedAt time.Time `json:"recorded_at"`
}

// Validate checks coordinate and optional-field ranges.
// Returns ErrValidation describing the first violation found.
func (l TrackingLog) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidation)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidation)
	}
	if l.Speed != nil && *l.Speed < 0 {
		return fmt.Errorf("%w: speed must not be negative", ErrValidation)
	}
	if l.Heading != nil && (*l.Heading < 0 || *l.Heading >= 360) {
		return fmt.Errorf("%w: heading must be in [0, 360)", ErrValidation)
	}
	return nil
}

// TrackingQuery carries the limit for a recent-fixes query from the HTTP
// layer to the repo layer. Limit defaults to 20 and is capped at 100 to
// prevent runaway queries.
type TrackingQuery struct {
	Limit int
}

// NewTrackingQuery builds a TrackingQuery from an optional query parameter.
func NewTrackingQuery(limit *int) TrackingQuery {
	q := TrackingQuery{Limit: 20}
	if limit != nil && *limit >= 1 {
		q.Limit = *limit
		if q.Limit > 100 {
			q.Limit = 100
		}
	}
	return q
}
