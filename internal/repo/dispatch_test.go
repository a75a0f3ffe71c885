package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
)

// offerTrip marks the trip DISPATCH_REQUESTED and creates a PENDING request
// for the driver with the given TTL.
func offerTrip(t *testing.T, tx pgx.Tx, tripID, driverID uuid.UUID, ttl time.Duration) domain.TripRequest {
	t.Helper()
	ctx := context.Background()

	_, err := repo.NewTripRepo(tx).MarkDispatchRequested(ctx, tripID)
	require.NoError(t, err)

	request, err := repo.NewRequestRepo(tx).Create(ctx, tripID, driverID, time.Now().Add(ttl))
	require.NoError(t, err)
	return request
}

// assignedTrip builds a trip in ASSIGNED through the full accept protocol
// and returns it. Used by tests that need a trip past the dispatch phase.
func assignedTrip(t *testing.T, tx pgx.Tx) domain.Trip {
	t.Helper()

	trip := createTrip(t, tx)
	driver := createDriver(t, tx)
	request := offerTrip(t, tx, trip.ID, driver.ID, 15*time.Minute)

	res, err := repo.NewDispatchRepo(tx).Accept(context.Background(), request.ID, driver.ID, "")
	require.NoError(t, err)
	return res.Trip
}

// ---- Accept -------------------------------------------------------------------

func TestDispatchRepo_Accept(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	trip := createTrip(t, tx)
	winner := createDriver(t, tx)
	loser := createDriver(t, tx)

	winnerReq := offerTrip(t, tx, trip.ID, winner.ID, 15*time.Minute)
	loserReq, err := repo.NewRequestRepo(tx).Create(ctx, trip.ID, loser.ID, time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	res, err := repo.NewDispatchRepo(tx).Accept(ctx, winnerReq.ID, winner.ID, "on my way")

	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccepted, res.Request.Status)
	assert.Equal(t, "on my way", res.Request.Notes)
	require.NotNil(t, res.Request.RespondedAt)

	assert.Equal(t, domain.TripAssigned, res.Trip.Status)
	require.NotNil(t, res.Trip.DriverID)
	assert.Equal(t, winner.ID, *res.Trip.DriverID)
	require.NotNil(t, res.Trip.AssignedAt)

	// The competing open offer was withdrawn, not rejected: its driver never
	// answered.
	require.Len(t, res.Expired, 1)
	assert.Equal(t, loserReq.ID, res.Expired[0].ID)
	assert.Equal(t, domain.RequestExpired, res.Expired[0].Status)
}

func TestDispatchRepo_Accept_LoserGetsConflict(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	trip := createTrip(t, tx)
	winner := createDriver(t, tx)
	loser := createDriver(t, tx)

	winnerReq := offerTrip(t, tx, trip.ID, winner.ID, 15*time.Minute)
	loserReq, err := repo.NewRequestRepo(tx).Create(ctx, trip.ID, loser.ID, time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	dispatch := repo.NewDispatchRepo(tx)
	_, err = dispatch.Accept(ctx, winnerReq.ID, winner.ID, "")
	require.NoError(t, err)

	// The loser's offer was force-expired with TTL remaining: that is a lost
	// race, not a timeout.
	_, err = dispatch.Accept(ctx, loserReq.ID, loser.ID, "")

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDispatchRepo_Accept_OverdueOffer(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	trip := createTrip(t, tx)
	driver := createDriver(t, tx)
	request := offerTrip(t, tx, trip.ID, driver.ID, -time.Minute) // already overdue

	_, err := repo.NewDispatchRepo(tx).Accept(ctx, request.ID, driver.ID, "")

	assert.ErrorIs(t, err, domain.ErrExpired)

	// The trip stays unassigned.
	got, err := repo.NewTripRepo(tx).GetByID(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripDispatchRequested, got.Status)
	assert.Nil(t, got.DriverID)
}

func TestDispatchRepo_Accept_AlreadyResolved(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	trip := createTrip(t, tx)
	driver := createDriver(t, tx)
	request := offerTrip(t, tx, trip.ID, driver.ID, 15*time.Minute)

	_, err := repo.NewRequestRepo(tx).MarkRejected(ctx, request.ID, driver.ID, "")
	require.NoError(t, err)

	_, err = repo.NewDispatchRepo(tx).Accept(ctx, request.ID, driver.ID, "")

	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestDispatchRepo_Accept_WrongDriver(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	trip := createTrip(t, tx)
	driver := createDriver(t, tx)
	other := createDriver(t, tx)
	request := offerTrip(t, tx, trip.ID, driver.ID, 15*time.Minute)

	// Another driver cannot act on an offer that was not addressed to them.
	_, err := repo.NewDispatchRepo(tx).Accept(ctx, request.ID, other.ID, "")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatchRepo_Accept_UnknownRequest(t *testing.T) {
	tx := newTestTx(t)

	_, err := repo.NewDispatchRepo(tx).Accept(context.Background(), uuid.New(), uuid.New(), "")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
