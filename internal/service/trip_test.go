package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
	"github.com/okonek/trip-dispatch/backend/internal/service"
)

// recordingInvoicer records invoice requests and optionally fails them.
type recordingInvoicer struct {
	requested []uuid.UUID
	err       error
}

func (i *recordingInvoicer) RequestInvoice(_ context.Context, tripID uuid.UUID) error {
	i.requested = append(i.requested, tripID)
	return i.err
}

var _ service.InvoiceRequester = (*recordingInvoicer)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- Create ----------------------------------------------------------------

func TestTripService_Create_GeneratesSeqNo(t *testing.T) {
	var gotSeqNo string
	trips := &mockTripRepo{
		create: func(_ context.Context, seqNo string) (domain.Trip, error) {
			gotSeqNo = seqNo
			return domain.Trip{ID: uuid.New(), SeqNo: seqNo, Status: domain.TripPending}, nil
		},
	}

	svc := service.NewTripService(trips, &mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	trip, err := svc.Create(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.TripPending, trip.Status)
	assert.Regexp(t, regexp.MustCompile(`^TRP-\d{8}-[0-9A-F]{8}$`), gotSeqNo)
}

// ---- GetByID ---------------------------------------------------------------

func TestTripService_GetByID_ReturnsTripWithRequests(t *testing.T) {
	tripID := uuid.New()
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripDispatchRequested}, nil
		},
	}
	requests := &mockRequestRepo{
		listByTrip: func(_ context.Context, _ uuid.UUID) ([]domain.TripRequest, error) {
			return []domain.TripRequest{
				{ID: uuid.New(), TripID: tripID, Status: domain.RequestPending},
			}, nil
		},
	}

	svc := service.NewTripService(trips, requests, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	trip, reqs, err := svc.GetByID(context.Background(), tripID)

	require.NoError(t, err)
	assert.Equal(t, tripID, trip.ID)
	require.Len(t, reqs, 1)
}

func TestTripService_GetByID_NoRequestsYieldsEmptySlice(t *testing.T) {
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripPending}, nil
		},
	}
	requests := &mockRequestRepo{
		listByTrip: func(_ context.Context, _ uuid.UUID) ([]domain.TripRequest, error) {
			return nil, nil
		},
	}

	svc := service.NewTripService(trips, requests, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	_, reqs, err := svc.GetByID(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.NotNil(t, reqs)
	assert.Empty(t, reqs)
}

func TestTripService_GetByID_NotFound(t *testing.T) {
	trips := &mockTripRepo{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	}

	svc := service.NewTripService(trips, &mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	_, _, err := svc.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---- UpdateStatus ----------------------------------------------------------

// transitioningTripRepo returns a repo whose trip starts in from and whose
// Transition applies the requested move.
func transitioningTripRepo(from domain.TripStatus) *mockTripRepo {
	return &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, SeqNo: "TRP-20260829-AAAA0001", Status: from}, nil
		},
		transition: func(_ context.Context, id uuid.UUID, _, to domain.TripStatus) (domain.Trip, error) {
			trip := domain.Trip{ID: id, SeqNo: "TRP-20260829-AAAA0001", Status: to}
			if to == domain.TripInProgress {
				now := time.Now()
				trip.StartedAt = &now
			}
			return trip, nil
		},
	}
}

func TestTripService_UpdateStatus_ValidTransition(t *testing.T) {
	tripID := uuid.New()
	svc := service.NewTripService(
		transitioningTripRepo(domain.TripAssigned),
		&mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	trip, err := svc.UpdateStatus(context.Background(), tripID, domain.TripInProgress)

	require.NoError(t, err)
	assert.Equal(t, domain.TripInProgress, trip.Status)
	assert.NotNil(t, trip.StartedAt)
}

func TestTripService_UpdateStatus_UnknownStatus(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{}, &mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripStatus("TELEPORTED"))

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTripService_UpdateStatus_SkippingStatesRejected(t *testing.T) {
	svc := service.NewTripService(
		transitioningTripRepo(domain.TripAssigned),
		&mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripAtDestination)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTripService_UpdateStatus_TerminalTripRejectsEverything(t *testing.T) {
	svc := service.NewTripService(
		transitioningTripRepo(domain.TripDelivered),
		&mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	for _, next := range []domain.TripStatus{domain.TripInProgress, domain.TripCancelled, domain.TripDelivered} {
		_, err := svc.UpdateStatus(context.Background(), uuid.New(), next)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "DELIVERED -> %s", next)
	}
}

func TestTripService_UpdateStatus_ConcurrentWriterWins(t *testing.T) {
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, Status: domain.TripAssigned}, nil
		},
		transition: func(_ context.Context, _ uuid.UUID, _, _ domain.TripStatus) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrConflict
		},
	}

	svc := service.NewTripService(trips, &mockRequestRepo{}, &recordingNotifier{}, &recordingInvoicer{}, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripInProgress)

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTripService_UpdateStatus_DeliveredTriggersInvoiceOnce(t *testing.T) {
	tripID := uuid.New()
	invoices := &recordingInvoicer{}

	svc := service.NewTripService(
		transitioningTripRepo(domain.TripAtDestination),
		&mockRequestRepo{}, &recordingNotifier{}, invoices, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), tripID, domain.TripDelivered)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tripID}, invoices.requested)
}

func TestTripService_UpdateStatus_InvoiceFailureDoesNotFailDelivery(t *testing.T) {
	// Billing reconciles on its side; a delivered trip stays delivered.
	invoices := &recordingInvoicer{err: errors.New("broker down")}

	svc := service.NewTripService(
		transitioningTripRepo(domain.TripAtDestination),
		&mockRequestRepo{}, &recordingNotifier{}, invoices, discardLogger())

	trip, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripDelivered)

	require.NoError(t, err)
	assert.Equal(t, domain.TripDelivered, trip.Status)
}

func TestTripService_UpdateStatus_CancelNotifiesAssignedDriver(t *testing.T) {
	driverID := uuid.New()
	trips := &mockTripRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
			return domain.Trip{ID: id, SeqNo: "TRP-20260829-AAAA0001", Status: domain.TripInTransit, DriverID: &driverID}, nil
		},
		transition: func(_ context.Context, id uuid.UUID, _, to domain.TripStatus) (domain.Trip, error) {
			return domain.Trip{ID: id, SeqNo: "TRP-20260829-AAAA0001", Status: to, DriverID: &driverID}, nil
		},
	}
	notifier := &recordingNotifier{}

	svc := service.NewTripService(trips, &mockRequestRepo{}, notifier, &recordingInvoicer{}, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripCancelled)

	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, driverID, notifier.sent[0].userID)
	assert.Equal(t, "trip.cancelled", notifier.sent[0].typ)
}

func TestTripService_UpdateStatus_CancelUnassignedTripNotifiesNobody(t *testing.T) {
	notifier := &recordingNotifier{}

	svc := service.NewTripService(
		transitioningTripRepo(domain.TripPending),
		&mockRequestRepo{}, notifier, &recordingInvoicer{}, discardLogger())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), domain.TripCancelled)

	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}
