package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the status of a single dispatch request (offer).
// A request is immutable once it leaves PENDING.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
	RequestExpired  RequestStatus = "EXPIRED"
)

// TripRequest is one time-boxed offer of a trip to one driver.
//
// Invariants enforced by repo and service:
//   - at most one active (PENDING, unexpired) request per (trip, driver)
//   - at most one request per trip ever reaches ACCEPTED; when one does,
//     every other PENDING request for that trip is moved to EXPIRED, not
//     REJECTED — those drivers never answered.
type TripRequest struct {
	ID          uuid.UUID     `json:"id"`
	TripID      uuid.UUID     `json:"trip_id"`
	DriverID    uuid.UUID     `json:"driver_id"`
	Status      RequestStatus `json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"` // created_at + TTL
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Expired reports whether the request's TTL has elapsed at the given instant.
// Status alone is not sufficient: a request can be past its expiry before the
// sweep has run, and responders must check wall-clock time.
func (r TripRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// RespondAction is a driver's answer to a dispatch request.
type RespondAction string

const (
	ActionAccept RespondAction = "accept"
	ActionReject RespondAction = "reject"
)

// IsValid reports whether a is a known respond action.
func (a RespondAction) IsValid() bool {
	return a == ActionAccept || a == ActionReject
}
