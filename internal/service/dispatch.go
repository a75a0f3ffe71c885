package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
)

// Notification type tags published on dispatch transitions. Consumers on the
// notification queue route on these.
const (
	notifyOfferReceived  = "dispatch.offer"
	notifyOfferWithdrawn = "dispatch.offer_withdrawn"
	notifyOfferExpired   = "dispatch.offer_expired"
)

// DispatchService brokers the handshake between dispatcher and drivers for
// a trip: it creates time-boxed offers, resolves concurrent accept/reject
// responses, and reconciles overdue offers.
type DispatchService struct {
	trips    repo.TripRepo
	requests repo.RequestRepo
	dispatch repo.DispatchRepo
	drivers  repo.DriverRepo
	notifier Notifier
	ttl      time.Duration

	// now is swappable in tests; defaults to time.Now.
	now func() time.Time
}

// NewDispatchService constructs a DispatchService. ttl is the window a
// driver has to answer an offer before automatic expiry.
func NewDispatchService(
	trips repo.TripRepo,
	requests repo.RequestRepo,
	dispatch repo.DispatchRepo,
	drivers repo.DriverRepo,
	notifier Notifier,
	ttl time.Duration,
) *DispatchService {
	return &DispatchService{
		trips:    trips,
		requests: requests,
		dispatch: dispatch,
		drivers:  drivers,
		notifier: notifier,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SendRequest offers a trip to a driver.
//
// Preconditions: the trip exists and is PENDING or DISPATCH_REQUESTED, the
// driver exists and is available, and the driver has no active offer for
// this trip (domain.ErrDuplicateRequest otherwise). On success the trip is
// in DISPATCH_REQUESTED and the driver has been notified.
func (s *DispatchService) SendRequest(ctx context.Context, tripID, driverID uuid.UUID) (domain.TripRequest, error) {
	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: driver: %w", err)
	}
	if !driver.Available {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: %w: driver is not available", domain.ErrValidation)
	}

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: trip: %w", err)
	}
	if trip.Status != domain.TripPending && trip.Status != domain.TripDispatchRequested {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: %w: trip is %s", domain.ErrInvalidTransition, trip.Status)
	}

	// Create the offer before flipping the trip. If the flip below fails
	// because the trip moved concurrently, the orphaned PENDING offer is
	// self-healing: the sweep expires it after the TTL.
	request, err := s.requests.Create(ctx, tripID, driverID, s.now().Add(s.ttl))
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: %w", err)
	}

	if _, err := s.trips.MarkDispatchRequested(ctx, tripID); err != nil {
		return domain.TripRequest{}, fmt.Errorf("service.DispatchService.SendRequest: %w", err)
	}

	s.notifier.Notify(ctx, driverID, notifyOfferReceived,
		"New trip offer",
		fmt.Sprintf("Trip %s has been offered to you", trip.SeqNo),
		map[string]any{
			"request_id": request.ID.String(),
			"trip_id":    tripID.String(),
			"expires_at": request.ExpiresAt,
		})

	return request, nil
}

// Respond resolves a driver's answer to an offer.
//
// accept is a single atomic conditional update chain: of two drivers
// accepting concurrently for the same trip, exactly one succeeds; the other
// observes domain.ErrConflict. reject resolves only the driver's own offer;
// if it was the trip's last active offer the trip reverts to PENDING for
// re-dispatch.
func (s *DispatchService) Respond(ctx context.Context, requestID, driverID uuid.UUID, action domain.RespondAction, notes string) (domain.TripRequest, domain.Trip, error) {
	if !action.IsValid() {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("service.DispatchService.Respond: %w: action must be accept or reject", domain.ErrValidation)
	}

	if action == domain.ActionAccept {
		return s.accept(ctx, requestID, driverID, notes)
	}
	return s.reject(ctx, requestID, driverID, notes)
}

func (s *DispatchService) accept(ctx context.Context, requestID, driverID uuid.UUID, notes string) (domain.TripRequest, domain.Trip, error) {
	res, err := s.dispatch.Accept(ctx, requestID, driverID, notes)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("service.DispatchService.Respond: %w", err)
	}

	// The losing drivers' offers were force-expired inside the accept
	// transaction; tell them the trip is gone.
	for _, lost := range res.Expired {
		s.notifier.Notify(ctx, lost.DriverID, notifyOfferWithdrawn,
			"Trip no longer available",
			fmt.Sprintf("Trip %s was assigned to another driver", res.Trip.SeqNo),
			map[string]any{"request_id": lost.ID.String(), "trip_id": res.Trip.ID.String()})
	}

	return res.Request, res.Trip, nil
}

func (s *DispatchService) reject(ctx context.Context, requestID, driverID uuid.UUID, notes string) (domain.TripRequest, domain.Trip, error) {
	request, err := s.requests.MarkRejected(ctx, requestID, driverID, notes)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("service.DispatchService.Respond: %w", err)
	}

	// Revert the trip to PENDING when no active offer remains. The guard
	// inside the update makes this a no-op if another offer is still open
	// or a concurrent accept already assigned the trip.
	if _, err := s.trips.RevertToPendingIfIdle(ctx, request.TripID); err != nil {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("service.DispatchService.Respond: %w", err)
	}

	trip, err := s.trips.GetByID(ctx, request.TripID)
	if err != nil {
		return domain.TripRequest{}, domain.Trip{}, fmt.Errorf("service.DispatchService.Respond: %w", err)
	}

	return request, trip, nil
}

// ExpireOverdue runs one reconciliation sweep: every PENDING offer whose TTL
// has elapsed becomes EXPIRED, trips in DISPATCH_REQUESTED with no active
// offer left revert to PENDING, and the overdue drivers are notified.
// Returns the number of offers expired.
//
// The sweep is stateless and idempotent — both steps re-derive their work
// set from current data. In particular the revert is not keyed to the rows
// this sweep expired: a revert that failed or crashed mid-sweep leaves the
// trip stranded in DISPATCH_REQUESTED, and its requests are no longer
// PENDING so no later expire pass would see them. The set-based revert
// picks such trips up on the next sweep.
func (s *DispatchService) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.requests.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service.DispatchService.ExpireOverdue: %w", err)
	}

	for _, req := range expired {
		s.notifier.Notify(ctx, req.DriverID, notifyOfferExpired,
			"Offer expired",
			"A trip offer expired before you responded",
			map[string]any{"request_id": req.ID.String(), "trip_id": req.TripID.String()})
	}

	if _, err := s.trips.RevertIdleToPending(ctx); err != nil {
		return len(expired), fmt.Errorf("service.DispatchService.ExpireOverdue: revert idle trips: %w", err)
	}

	return len(expired), nil
}
