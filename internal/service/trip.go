package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
)

const notifyTripCancelled = "trip.cancelled"

// TripService implements the trip lifecycle: creation in PENDING (a thin
// stand-in for the out-of-scope booking flow) and guarded status
// transitions, including the DELIVERED invoice trigger and the CANCELLED
// notification.
type TripService struct {
	trips    repo.TripRepo
	requests repo.RequestRepo
	notifier Notifier
	invoices InvoiceRequester
	logger   *slog.Logger
}

// NewTripService constructs a TripService backed by the provided repos and
// collaborators.
func NewTripService(trips repo.TripRepo, requests repo.RequestRepo, notifier Notifier, invoices InvoiceRequester, logger *slog.Logger) *TripService {
	return &TripService{
		trips:    trips,
		requests: requests,
		notifier: notifier,
		invoices: invoices,
		logger:   logger,
	}
}

// Create persists a new PENDING trip with a generated sequence number.
func (s *TripService) Create(ctx context.Context) (domain.Trip, error) {
	trip, err := s.trips.Create(ctx, newSeqNo())
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	return trip, nil
}

// GetByID returns a trip together with all its dispatch requests, newest
// request first.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, []domain.TripRequest, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, nil, fmt.Errorf("service.TripService.GetByID: %w", err)
	}

	requests, err := s.requests.ListByTrip(ctx, id)
	if err != nil {
		return domain.Trip{}, nil, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	if requests == nil {
		requests = []domain.TripRequest{}
	}

	return trip, requests, nil
}

// UpdateStatus applies one lifecycle transition.
//
// The write is guarded on the status the caller observed, so a concurrent
// transition surfaces as domain.ErrConflict rather than silently winning.
// Entering IN_PROGRESS stamps the actual start exactly once; entering
// DELIVERED stamps the delivery time and triggers invoice generation exactly
// once — the guard on the conditional update is what makes a retried
// DELIVERED transition unable to double-bill.
func (s *TripService) UpdateStatus(ctx context.Context, id uuid.UUID, next domain.TripStatus) (domain.Trip, error) {
	if !next.IsValid() {
		return domain.Trip{}, fmt.Errorf("service.TripService.UpdateStatus: %w: unknown status %q", domain.ErrValidation, next)
	}

	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.UpdateStatus: %w", err)
	}

	if !trip.Status.CanTransition(next) {
		return domain.Trip{}, fmt.Errorf("service.TripService.UpdateStatus: %w: %s -> %s", domain.ErrInvalidTransition, trip.Status, next)
	}

	updated, err := s.trips.Transition(ctx, id, trip.Status, next)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.UpdateStatus: %w", err)
	}

	switch next {
	case domain.TripDelivered:
		// The transition just applied, so no invoice exists for this trip
		// yet. The collaborator is idempotent; a failure here is logged and
		// left to billing-side reconciliation rather than failing an
		// already-delivered trip.
		if err := s.invoices.RequestInvoice(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "invoice request failed",
				"trip_id", id, "error", err)
		}
	case domain.TripCancelled:
		// Cancellation-fee arithmetic lives in the billing collaborator;
		// here we only emit the event.
		if updated.DriverID != nil {
			s.notifier.Notify(ctx, *updated.DriverID, notifyTripCancelled,
				"Trip cancelled",
				fmt.Sprintf("Trip %s has been cancelled", updated.SeqNo),
				map[string]any{"trip_id": id.String()})
		}
	}

	return updated, nil
}

// newSeqNo generates a human-readable trip sequence number, e.g.
// "TRP-20260829-4F21A7C3". Uniqueness is ultimately enforced by the DB
// constraint; the uuid fragment makes collisions practically impossible.
func newSeqNo() string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TRP-%s-%s", time.Now().UTC().Format("20060102"), frag)
}
