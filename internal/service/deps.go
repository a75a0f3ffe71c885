// Package service contains the business logic for the trip dispatch API.
// Services validate inputs, enforce the lifecycle and dispatch protocols,
// and orchestrate repo calls. No SQL lives here — services depend on repo
// interfaces, not implementations.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// Notifier is the fire-and-forget notification side channel invoked on
// dispatch state transitions. Implementations must not block the caller on
// delivery and must swallow (log) their own failures — the core never
// consumes a return value. The production implementation publishes to AMQP;
// tests use a recording fake.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// InvoiceRequester asks the billing collaborator to generate an invoice for
// a delivered trip. The collaborator is idempotent, so a duplicate call is
// safe, but the service only issues it when the DELIVERED transition
// actually applied.
type InvoiceRequester interface {
	RequestInvoice(ctx context.Context, tripID uuid.UUID) error
}

// LocationCache holds each driver's last-known location, written on every
// ingested fix and read by observers that need initial state before joining
// a live channel (the channel replays no history).
type LocationCache interface {
	SetDriverLocation(ctx context.Context, loc domain.DriverLocation) error
	// GetDriverLocation returns domain.ErrNotFound when no fix has been
	// cached for the driver yet.
	GetDriverLocation(ctx context.Context, driverID uuid.UUID) (domain.DriverLocation, error)
}

// LocationPublisher fans a fix out to the driver's live subscribers.
// Publish must never block: delivery is best-effort and slow subscribers
// lose frames rather than stalling ingestion.
type LocationPublisher interface {
	Publish(driverID uuid.UUID, loc domain.DriverLocation)
}
