package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// TxBeginner is the slice of *pgxpool.Pool the dispatch repo needs to open
// transactions. pgx.Tx also satisfies it (nested transactions become
// savepoints), so integration tests keep their rollback isolation.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AcceptResult carries everything the service needs after a successful
// accept: the resolved request, the assigned trip, and the competing
// requests that were force-expired (their drivers must be notified).
type AcceptResult struct {
	Request domain.TripRequest
	Trip    domain.Trip
	Expired []domain.TripRequest
}

// DispatchRepo owns the one multi-statement write in the system: resolving
// an accept. It is separate from RequestRepo because it needs to open its
// own transaction rather than run on whatever db handle it was given.
type DispatchRepo interface {
	// Accept atomically resolves a dispatch request in the driver's favor:
	// the request becomes ACCEPTED, the trip becomes ASSIGNED to the driver,
	// and every other PENDING request for the trip becomes EXPIRED.
	//
	// Every step is a conditional update guarded on the expected prior state,
	// all inside one transaction. Given two concurrent accepts for the same
	// trip, the row locks serialize them and the loser's guard matches zero
	// rows: exactly one caller wins. Failures are classified as ErrNotFound,
	// ErrAlreadyResolved, ErrExpired, or ErrConflict.
	Accept(ctx context.Context, requestID, driverID uuid.UUID, notes string) (AcceptResult, error)
}

// pgDispatchRepo is the Postgres implementation of DispatchRepo.
type pgDispatchRepo struct {
	pool TxBeginner
}

// NewDispatchRepo constructs a DispatchRepo that opens transactions on pool.
func NewDispatchRepo(pool TxBeginner) DispatchRepo {
	return &pgDispatchRepo{pool: pool}
}

// Accept runs the three guarded writes of the accept protocol.
func (r *pgDispatchRepo) Accept(ctx context.Context, requestID, driverID uuid.UUID, notes string) (AcceptResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: begin: %w", err)
	}
	// Rollback after commit is a harmless no-op.
	defer tx.Rollback(ctx)

	// Step 1: resolve the request, guarded on "still PENDING and unexpired".
	// The expiry is checked against the wall clock here, not a cached flag,
	// to close the race window between the sweep and a late response.
	const acceptReq = `
		UPDATE trip_requests
		SET status       = 'ACCEPTED',
		    responded_at = now(),
		    notes        = @notes
		WHERE id = @id
		  AND driver_id = @driver_id
		  AND status = 'PENDING'
		  AND expires_at > now()
		RETURNING ` + requestColumns

	args := pgx.NamedArgs{"id": requestID, "driver_id": driverID, "notes": notes}

	request, err := scanRequest(tx.QueryRow(ctx, acceptReq, args))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: request: %w", err)
		}
		cause := classifyRespondFailure(ctx, tx, requestID, driverID)
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: %w", cause)
	}

	// Step 2: assign the trip, guarded on "still offered and unassigned".
	// This is the arbiter between two drivers racing on different requests
	// for the same trip: the second UPDATE re-evaluates its predicate after
	// the winner's commit and matches nothing.
	const assignTrip = `
		UPDATE trips
		SET status      = 'ASSIGNED',
		    driver_id   = @driver_id,
		    assigned_at = now(),
		    updated_at  = now()
		WHERE id = @id
		  AND status = 'DISPATCH_REQUESTED'
		  AND driver_id IS NULL
		RETURNING ` + tripColumns

	trip, err := scanTrip(tx.QueryRow(ctx, assignTrip, pgx.NamedArgs{
		"id":        request.TripID,
		"driver_id": driverID,
	}))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Rolled back by the deferred Rollback: the request stays PENDING.
			return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: trip: %w", domain.ErrConflict)
		}
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: trip: %w", err)
	}

	// Step 3: withdraw every other open offer for this trip. They were never
	// answered, so they become EXPIRED, not REJECTED.
	const expireOthers = `
		UPDATE trip_requests
		SET status = 'EXPIRED'
		WHERE trip_id = @trip_id
		  AND id <> @id
		  AND status = 'PENDING'
		RETURNING ` + requestColumns

	rows, err := tx.Query(ctx, expireOthers, pgx.NamedArgs{
		"trip_id": request.TripID,
		"id":      requestID,
	})
	if err != nil {
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: expire others: %w", err)
	}

	var expired []domain.TripRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: expire others: scan: %w", err)
		}
		expired = append(expired, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: expire others: rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AcceptResult{}, fmt.Errorf("repo.DispatchRepo.Accept: commit: %w", err)
	}

	return AcceptResult{Request: request, Trip: trip, Expired: expired}, nil
}
