// Package repo contains all database access logic for the trip dispatch API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here — only SQL, type mapping, and the conditional
// (compare-and-set) update guards that resolve concurrent writes.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// tripColumns is the canonical SELECT/RETURNING column list for trips,
// matched by scanTrip.
const tripColumns = `id, seq_no, status, driver_id, assigned_at, started_at, delivered_at, created_at, updated_at`

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres
// implementation, which allows the services to be unit-tested with mocks.
type TripRepo interface {
	// Create inserts a new trip in PENDING status and returns the persisted
	// record (with DB-generated id, created_at, and updated_at populated).
	Create(ctx context.Context, seqNo string) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// MarkDispatchRequested conditionally moves a trip to DISPATCH_REQUESTED.
	// The write only applies while the trip is PENDING or already
	// DISPATCH_REQUESTED (idempotent re-offer). Returns domain.ErrNotFound if
	// the trip does not exist and domain.ErrInvalidTransition if it exists in
	// any other status.
	MarkDispatchRequested(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// Transition conditionally moves a trip from one observed status to the
	// next. The guard "status = from" makes the write a no-op when a
	// concurrent writer got there first, in which case domain.ErrConflict is
	// returned. Entering IN_PROGRESS stamps started_at at most once; entering
	// DELIVERED stamps delivered_at.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) (domain.Trip, error)

	// RevertToPendingIfIdle moves a DISPATCH_REQUESTED trip back to PENDING,
	// but only when no PENDING or ACCEPTED request remains for it. Reports
	// whether the revert applied. Safe to call repeatedly — the guard makes
	// every extra call a no-op.
	RevertToPendingIfIdle(ctx context.Context, id uuid.UUID) (bool, error)

	// RevertIdleToPending applies the same back edge to every
	// DISPATCH_REQUESTED trip with no PENDING or ACCEPTED request left,
	// returning the ids of the trips it reverted. The work set is derived
	// from current data, not from the caller's view of it, so a revert
	// missed by an earlier caller is picked up by the next one.
	RevertIdleToPending(ctx context.Context) ([]uuid.UUID, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

// Create inserts a new PENDING trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, seqNo string) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (seq_no, status)
		VALUES (@seq_no, 'PENDING')
		RETURNING ` + tripColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"seq_no": seqNo})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `SELECT ` + tripColumns + ` FROM trips WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// MarkDispatchRequested conditionally flips a trip into DISPATCH_REQUESTED.
func (r *pgTripRepo) MarkDispatchRequested(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET status     = 'DISPATCH_REQUESTED',
		    updated_at = now()
		WHERE id = @id
		  AND status IN ('PENDING', 'DISPATCH_REQUESTED')
		RETURNING ` + tripColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanTrip(row)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.MarkDispatchRequested: %w", err)
	}

	// Guard did not match. Distinguish a missing trip from one in the wrong
	// status so the caller can report a precise error.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.MarkDispatchRequested: %w", domain.ErrNotFound)
	}
	return domain.Trip{}, fmt.Errorf("repo.TripRepo.MarkDispatchRequested: %w", domain.ErrInvalidTransition)
}

// Transition applies a guarded status change with lifecycle timestamp stamps.
// started_at uses COALESCE so repeated entries into IN_PROGRESS never
// overwrite the original start time.
func (r *pgTripRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET status     = @to,
		    started_at = CASE WHEN @to = 'IN_PROGRESS'
		                      THEN COALESCE(started_at, now())
		                      ELSE started_at END,
		    delivered_at = CASE WHEN @to = 'DELIVERED'
		                        THEN COALESCE(delivered_at, now())
		                        ELSE delivered_at END,
		    updated_at = now()
		WHERE id = @id
		  AND status = @from
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{"id": id, "from": string(from), "to": string(to)}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The trip moved under us (or never existed): the guard saw a
			// different status than the caller observed.
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.Transition: %w", domain.ErrConflict)
		}
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Transition: %w", err)
	}
	return result, nil
}

// RevertToPendingIfIdle applies the re-dispatch back edge when the last
// active request for a trip has been resolved or expired.
func (r *pgTripRepo) RevertToPendingIfIdle(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE trips
		SET status     = 'PENDING',
		    updated_at = now()
		WHERE id = @id
		  AND status = 'DISPATCH_REQUESTED'
		  AND NOT EXISTS (
		      SELECT 1 FROM trip_requests
		      WHERE trip_id = @id
		        AND status IN ('PENDING', 'ACCEPTED'))`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("repo.TripRepo.RevertToPendingIfIdle: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RevertIdleToPending reverts every DISPATCH_REQUESTED trip whose last
// active request is gone, regardless of when or how it went away.
func (r *pgTripRepo) RevertIdleToPending(ctx context.Context) ([]uuid.UUID, error) {
	const q = `
		UPDATE trips t
		SET status     = 'PENDING',
		    updated_at = now()
		WHERE t.status = 'DISPATCH_REQUESTED'
		  AND NOT EXISTS (
		      SELECT 1 FROM trip_requests r
		      WHERE r.trip_id = t.id
		        AND r.status IN ('PENDING', 'ACCEPTED'))
		RETURNING t.id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.RevertIdleToPending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo.TripRepo.RevertIdleToPending: scan: %w", err)
		}
		ids = append(ids, uuid.UUID(id.Bytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.RevertIdleToPending: rows: %w", err)
	}

	return ids, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID and nullable column conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t           domain.Trip
		id          pgtype.UUID
		status      string
		driverID    pgtype.UUID
		assignedAt  pgtype.Timestamptz
		startedAt   pgtype.Timestamptz
		deliveredAt pgtype.Timestamptz
	)

	err := s.Scan(&id, &t.SeqNo, &status, &driverID, &assignedAt, &startedAt, &deliveredAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.Status = domain.TripStatus(status)
	if driverID.Valid {
		d := uuid.UUID(driverID.Bytes)
		t.DriverID = &d
	}
	if assignedAt.Valid {
		at := assignedAt.Time
		t.AssignedAt = &at
	}
	if startedAt.Valid {
		st := startedAt.Time
		t.StartedAt = &st
	}
	if deliveredAt.Valid {
		dt := deliveredAt.Time
		t.DeliveredAt = &dt
	}

	return t, nil
}
