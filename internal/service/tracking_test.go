package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
	"github.com/okonek/trip-dispatch/backend/internal/service"
)

type mockTrackingRepo struct {
	insertActive func(ctx context.Context, log domain.TrackingLog) (domain.TrackingLog, error)
	recentByTrip func(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.TrackingLog, error)
}

func (m *mockTrackingRepo) InsertActive(ctx context.Context, log domain.TrackingLog) (domain.TrackingLog, error) {
	return m.insertActive(ctx, log)
}
func (m *mockTrackingRepo) RecentByTrip(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.TrackingLog, error) {
	return m.recentByTrip(ctx, tripID, limit)
}

var _ repo.TrackingRepo = (*mockTrackingRepo)(nil)

// fakeLocationCache stores locations in a map and optionally fails writes.
type fakeLocationCache struct {
	setErr error
	stored map[uuid.UUID]domain.DriverLocation
}

func newFakeLocationCache() *fakeLocationCache {
	return &fakeLocationCache{stored: make(map[uuid.UUID]domain.DriverLocation)}
}

func (c *fakeLocationCache) SetDriverLocation(_ context.Context, loc domain.DriverLocation) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.stored[loc.DriverID] = loc
	return nil
}

func (c *fakeLocationCache) GetDriverLocation(_ context.Context, driverID uuid.UUID) (domain.DriverLocation, error) {
	loc, ok := c.stored[driverID]
	if !ok {
		return domain.DriverLocation{}, domain.ErrNotFound
	}
	return loc, nil
}

var _ service.LocationCache = (*fakeLocationCache)(nil)

// recordingPublisher records hub publishes.
type recordingPublisher struct {
	published []domain.DriverLocation
}

func (p *recordingPublisher) Publish(_ uuid.UUID, loc domain.DriverLocation) {
	p.published = append(p.published, loc)
}

var _ service.LocationPublisher = (*recordingPublisher)(nil)

// ---- helpers ---------------------------------------------------------------

func validFix(tripID, driverID uuid.UUID) domain.TrackingLog {
	return domain.TrackingLog{
		TripID:     tripID,
		DriverID:   driverID,
		Latitude:   52.2297,
		Longitude:  21.0122,
		RecordedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

// echoTrackingRepo accepts every fix and echoes it back with an ID.
func echoTrackingRepo() *mockTrackingRepo {
	return &mockTrackingRepo{
		insertActive: func(_ context.Context, log domain.TrackingLog) (domain.TrackingLog, error) {
			log.ID = uuid.New()
			return log, nil
		},
	}
}

// ---- Ingest ----------------------------------------------------------------

func TestTrackingService_Ingest_StoresCachesAndPublishes(t *testing.T) {
	tripID := uuid.New()
	driverID := uuid.New()
	cache := newFakeLocationCache()
	hub := &recordingPublisher{}

	svc := service.NewTrackingService(echoTrackingRepo(), &mockTripRepo{}, cache, hub, discardLogger())

	stored, err := svc.Ingest(context.Background(), validFix(tripID, driverID))

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.ID)

	// The durable write feeds both the cache and the live channel.
	cached, ok := cache.stored[driverID]
	require.True(t, ok)
	assert.Equal(t, tripID, cached.TripID)
	assert.Equal(t, 52.2297, cached.Latitude)

	require.Len(t, hub.published, 1)
	assert.Equal(t, driverID, hub.published[0].DriverID)
}

func TestTrackingService_Ingest_DefaultsRecordedAt(t *testing.T) {
	fix := validFix(uuid.New(), uuid.New())
	fix.RecordedAt = time.Time{}

	svc := service.NewTrackingService(echoTrackingRepo(), &mockTripRepo{}, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	stored, err := svc.Ingest(context.Background(), fix)

	require.NoError(t, err)
	assert.False(t, stored.RecordedAt.IsZero())
}

func TestTrackingService_Ingest_RejectsOutOfRangeCoordinates(t *testing.T) {
	svc := service.NewTrackingService(&mockTrackingRepo{}, &mockTripRepo{}, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	fix := validFix(uuid.New(), uuid.New())
	fix.Latitude = 91

	_, err := svc.Ingest(context.Background(), fix)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTrackingService_Ingest_InactiveTrip(t *testing.T) {
	tracking := &mockTrackingRepo{
		insertActive: func(_ context.Context, _ domain.TrackingLog) (domain.TrackingLog, error) {
			return domain.TrackingLog{}, domain.ErrInvalidState
		},
	}
	// The trip exists but is not active; the error stays ErrInvalidState.
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripPending}, nil
		},
	}
	hub := &recordingPublisher{}

	svc := service.NewTrackingService(tracking, trips, newFakeLocationCache(), hub, discardLogger())

	_, err := svc.Ingest(context.Background(), validFix(uuid.New(), uuid.New()))

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, hub.published)
}

func TestTrackingService_Ingest_MissingTripBecomesNotFound(t *testing.T) {
	tracking := &mockTrackingRepo{
		insertActive: func(_ context.Context, _ domain.TrackingLog) (domain.TrackingLog, error) {
			return domain.TrackingLog{}, domain.ErrInvalidState
		},
	}
	trips := &mockTripRepo{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	}

	svc := service.NewTrackingService(tracking, trips, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	_, err := svc.Ingest(context.Background(), validFix(uuid.New(), uuid.New()))

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTrackingService_Ingest_CacheFailureStillPublishes(t *testing.T) {
	cache := newFakeLocationCache()
	cache.setErr = errors.New("redis down")
	hub := &recordingPublisher{}

	svc := service.NewTrackingService(echoTrackingRepo(), &mockTripRepo{}, cache, hub, discardLogger())

	_, err := svc.Ingest(context.Background(), validFix(uuid.New(), uuid.New()))

	// Cache and broadcast are best-effort; the fix is durable either way.
	require.NoError(t, err)
	require.Len(t, hub.published, 1)
}

// ---- Recent ----------------------------------------------------------------

func TestTrackingService_Recent_PassesLimitThrough(t *testing.T) {
	tripID := uuid.New()
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripInProgress}, nil
		},
	}
	var gotLimit int
	tracking := &mockTrackingRepo{
		recentByTrip: func(_ context.Context, _ uuid.UUID, limit int) ([]domain.TrackingLog, error) {
			gotLimit = limit
			return []domain.TrackingLog{{ID: uuid.New(), TripID: tripID}}, nil
		},
	}

	svc := service.NewTrackingService(tracking, trips, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	logs, err := svc.Recent(context.Background(), tripID, domain.TrackingQuery{Limit: 50})

	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)
	assert.Len(t, logs, 1)
}

func TestTrackingService_Recent_UnknownTrip(t *testing.T) {
	trips := &mockTripRepo{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	}

	svc := service.NewTrackingService(&mockTrackingRepo{}, trips, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	_, err := svc.Recent(context.Background(), uuid.New(), domain.TrackingQuery{Limit: 20})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTrackingService_Recent_NoFixesYieldsEmptySlice(t *testing.T) {
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripInProgress}, nil
		},
	}
	tracking := &mockTrackingRepo{
		recentByTrip: func(_ context.Context, _ uuid.UUID, _ int) ([]domain.TrackingLog, error) {
			return nil, nil
		},
	}

	svc := service.NewTrackingService(tracking, trips, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	logs, err := svc.Recent(context.Background(), uuid.New(), domain.TrackingQuery{Limit: 20})

	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

// ---- LastKnown -------------------------------------------------------------

func TestTrackingService_LastKnown_ReturnsCachedSnapshot(t *testing.T) {
	driverID := uuid.New()
	cache := newFakeLocationCache()
	cache.stored[driverID] = domain.DriverLocation{DriverID: driverID, Latitude: 50.06, Longitude: 19.94}

	svc := service.NewTrackingService(&mockTrackingRepo{}, &mockTripRepo{}, cache, &recordingPublisher{}, discardLogger())

	loc, err := svc.LastKnown(context.Background(), driverID)

	require.NoError(t, err)
	assert.Equal(t, 50.06, loc.Latitude)
}

func TestTrackingService_LastKnown_NoFixCachedYet(t *testing.T) {
	svc := service.NewTrackingService(&mockTrackingRepo{}, &mockTripRepo{}, newFakeLocationCache(), &recordingPublisher{}, discardLogger())

	_, err := svc.LastKnown(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
