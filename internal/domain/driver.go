package domain

import (
	"time"

	"github.com/google/uuid"
)

// Driver is the slice of the driver entity this service owns: availability
// for dispatch and the tracking flag. Identity and profile data live in the
// out-of-scope user service.
type Driver struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Available       bool      `json:"available"`
	TrackingEnabled bool      `json:"tracking_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DriverLocation is the last-known-location snapshot kept in the cache,
// updated as a side effect of every ingested fix. Observers joining a live
// channel read this for initial state; the channel itself replays no history.
type DriverLocation struct {
	DriverID   uuid.UUID `json:"driver_id"`
	TripID     uuid.UUID `json:"trip_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
