package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist (or does not belong to the caller).
// Handlers map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails business rule validation
// (e.g. bad coordinates, unknown status value).
// Handlers map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrDuplicateRequest is returned by sendRequest when the driver already has
// an active (PENDING, unexpired) request for the trip.
// Handlers map this to HTTP 409.
var ErrDuplicateRequest = errors.New("driver already has a pending offer for this trip")

// ErrAlreadyResolved is returned by respond when the request has already been
// accepted or rejected. Resolved requests are immutable.
// Handlers map this to HTTP 409.
var ErrAlreadyResolved = errors.New("request already resolved")

// ErrExpired is returned by respond when the request's TTL elapsed before the
// driver answered. The sweep normally gets there first; this closes the race
// window between sweep and response.
// Handlers map this to HTTP 410 Gone.
var ErrExpired = errors.New("offer expired")

// ErrConflict is returned by respond(accept) when another driver won the
// trip: the request or the trip is no longer in an acceptable state.
// Handlers map this to HTTP 409.
var ErrConflict = errors.New("trip no longer available")

// ErrInvalidTransition is returned when a trip status change is not permitted
// by the lifecycle state machine (including any change from a terminal state).
// Handlers map this to HTTP 409.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidState is returned by location ingestion when the trip exists but
// is not in an active status for the calling driver. The client is expected
// to stop sending fixes; nothing is queued or retried.
// Handlers map this to HTTP 409.
var ErrInvalidState = errors.New("trip is not active")
