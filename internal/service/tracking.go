package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
)

// TrackingService accepts position fixes from active drivers and
// distributes them: durably to the tracking log, and best-effort to the
// last-known-location cache and the live broadcast channel.
type TrackingService struct {
	tracking repo.TrackingRepo
	trips    repo.TripRepo
	cache    LocationCache
	hub      LocationPublisher
	logger   *slog.Logger
}

// NewTrackingService constructs a TrackingService.
func NewTrackingService(tracking repo.TrackingRepo, trips repo.TripRepo, cache LocationCache, hub LocationPublisher, logger *slog.Logger) *TrackingService {
	return &TrackingService{
		tracking: tracking,
		trips:    trips,
		cache:    cache,
		hub:      hub,
		logger:   logger,
	}
}

// Ingest validates and appends one fix.
//
// The fix is accepted only while the trip is in an active status and
// assigned to the calling driver; the guard lives inside the insert so it
// cannot race a concurrent trip transition. A fix on a missing trip returns
// domain.ErrNotFound; on an inactive or foreign trip, domain.ErrInvalidState.
// The caller is expected to stop sending on either — nothing is queued.
//
// Cache and broadcast updates happen after the fix is durable and are
// best-effort: their failures are logged, never returned, and subscribers
// may see a fix before, after, or never relative to other observers.
func (s *TrackingService) Ingest(ctx context.Context, fix domain.TrackingLog) (domain.TrackingLog, error) {
	if err := fix.Validate(); err != nil {
		return domain.TrackingLog{}, fmt.Errorf("service.TrackingService.Ingest: %w", err)
	}
	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = time.Now().UTC()
	}

	stored, err := s.tracking.InsertActive(ctx, fix)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Distinguish "no such trip" from "trip not active for this
			// driver" so the client gets an accurate error.
			if _, getErr := s.trips.GetByID(ctx, fix.TripID); errors.Is(getErr, domain.ErrNotFound) {
				return domain.TrackingLog{}, fmt.Errorf("service.TrackingService.Ingest: %w", domain.ErrNotFound)
			}
		}
		return domain.TrackingLog{}, fmt.Errorf("service.TrackingService.Ingest: %w", err)
	}

	loc := domain.DriverLocation{
		DriverID:   stored.DriverID,
		TripID:     stored.TripID,
		Latitude:   stored.Latitude,
		Longitude:  stored.Longitude,
		Speed:      stored.Speed,
		Heading:    stored.Heading,
		RecordedAt: stored.RecordedAt,
	}

	if err := s.cache.SetDriverLocation(ctx, loc); err != nil {
		s.logger.WarnContext(ctx, "last-known-location cache update failed",
			"driver_id", stored.DriverID, "error", err)
	}

	s.hub.Publish(stored.DriverID, loc)

	return stored, nil
}

// Recent returns the most recent fixes for a trip, newest first.
// Always returns a non-nil slice so callers can safely range over it.
func (s *TrackingService) Recent(ctx context.Context, tripID uuid.UUID, q domain.TrackingQuery) ([]domain.TrackingLog, error) {
	if _, err := s.trips.GetByID(ctx, tripID); err != nil {
		return nil, fmt.Errorf("service.TrackingService.Recent: %w", err)
	}

	logs, err := s.tracking.RecentByTrip(ctx, tripID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("service.TrackingService.Recent: %w", err)
	}
	if logs == nil {
		logs = []domain.TrackingLog{}
	}
	return logs, nil
}

// LastKnown returns the driver's cached last-known location, the initial
// snapshot for an observer about to join the live channel.
// Returns domain.ErrNotFound when no fix has been cached yet.
func (s *TrackingService) LastKnown(ctx context.Context, driverID uuid.UUID) (domain.DriverLocation, error) {
	loc, err := s.cache.GetDriverLocation(ctx, driverID)
	if err != nil {
		return domain.DriverLocation{}, fmt.Errorf("service.TrackingService.LastKnown: %w", err)
	}
	return loc, nil
}
