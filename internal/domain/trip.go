// Package domain contains the core data types for the trip dispatch service.
// This package has no dependencies beyond uuid and is imported by every other
// internal package (repo, service, scheduler, hub, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle status of a Trip. It is a separate state
// machine from RequestStatus: a trip describes the job, a request describes
// one time-boxed offer of that job to one driver.
type TripStatus string

const (
	TripPending           TripStatus = "PENDING"
	TripDispatchRequested TripStatus = "DISPATCH_REQUESTED"
	TripAssigned          TripStatus = "ASSIGNED"
	TripInProgress        TripStatus = "IN_PROGRESS"
	TripEnRoutePickup     TripStatus = "EN_ROUTE_PICKUP"
	TripAtPickup          TripStatus = "AT_PICKUP"
	TripPickedUp          TripStatus = "PICKED_UP"
	TripInTransit         TripStatus = "IN_TRANSIT"
	TripAtDestination     TripStatus = "AT_DESTINATION"
	TripDelivered         TripStatus = "DELIVERED"
	TripCancelled         TripStatus = "CANCELLED"
)

// tripTransitions is the forward edge set of the lifecycle state machine.
// CANCELLED is handled in CanTransition because it is reachable from every
// non-terminal state.
var tripTransitions = map[TripStatus][]TripStatus{
	TripPending:           {TripDispatchRequested},
	TripDispatchRequested: {TripAssigned, TripPending}, // back edge: all offers expired or rejected
	TripAssigned:          {TripInProgress},
	TripInProgress:        {TripEnRoutePickup},
	TripEnRoutePickup:     {TripAtPickup},
	TripAtPickup:          {TripPickedUp},
	TripPickedUp:          {TripInTransit},
	TripInTransit:         {TripAtDestination},
	TripAtDestination:     {TripDelivered},
	TripDelivered:         nil,
	TripCancelled:         nil,
}

// activeStatuses are the states in which a trip is underway and location
// fixes from the assigned driver are accepted.
var activeStatuses = []TripStatus{
	TripInProgress,
	TripEnRoutePickup,
	TripAtPickup,
	TripPickedUp,
	TripInTransit,
	TripAtDestination,
}

// IsTerminal reports whether s permits no further transitions.
func (s TripStatus) IsTerminal() bool {
	return s == TripDelivered || s == TripCancelled
}

// IsActive reports whether a trip in this status accepts location fixes.
func (s TripStatus) IsActive() bool {
	for _, a := range activeStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known trip status value.
func (s TripStatus) IsValid() bool {
	_, ok := tripTransitions[s]
	return ok
}

// CanTransition reports whether the lifecycle state machine permits moving
// from s to next. CANCELLED is reachable from any non-terminal state.
func (s TripStatus) CanTransition(next TripStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TripCancelled {
		return true
	}
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveStatuses returns the statuses in which location ingestion is
// permitted, in lifecycle order. The returned slice is a fresh copy so
// callers may not mutate package state through it.
func ActiveStatuses() []TripStatus {
	out := make([]TripStatus, len(activeStatuses))
	copy(out, activeStatuses)
	return out
}

// Trip represents a single transport job moving through its lifecycle.
// Trips are created in PENDING by the booking flow and are never deleted,
// only terminated (DELIVERED or CANCELLED).
type Trip struct {
	ID          uuid.UUID  `json:"id"`
	SeqNo       string     `json:"seq_no"`
	Status      TripStatus `json:"status"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"` // non-nil iff status is at or past ASSIGNED
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`   // stamped once on first entry to IN_PROGRESS
	DeliveredAt *time.Time `json:"delivered_at,omitempty"` // stamped once on entry to DELIVERED
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
