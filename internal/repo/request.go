package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint violations,
// raised by the partial unique index on (trip_id, driver_id) WHERE PENDING.
const uniqueViolation = "23505"

// requestColumns is the canonical SELECT/RETURNING column list for
// trip_requests, matched by scanRequest.
const requestColumns = `id, trip_id, driver_id, status, expires_at, responded_at, notes, created_at`

// RequestRepo defines the persistence operations for dispatch requests.
type RequestRepo interface {
	// Create inserts a PENDING request expiring at expiresAt.
	// Returns domain.ErrDuplicateRequest if the driver already has a PENDING
	// request for the trip (enforced by a partial unique index, so two
	// concurrent creates cannot both succeed).
	Create(ctx context.Context, tripID, driverID uuid.UUID, expiresAt time.Time) (domain.TripRequest, error)

	// GetByID retrieves a single request by its UUID primary key.
	// Returns domain.ErrNotFound if no request with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error)

	// ListByTrip returns all requests for a trip, newest first.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripRequest, error)

	// MarkRejected conditionally resolves a PENDING, unexpired request as
	// REJECTED. The guard "status = 'PENDING' AND expires_at > now()" makes
	// the write a no-op against already-resolved or overdue requests; in that
	// case the error is classified via classifyRespondFailure.
	MarkRejected(ctx context.Context, id, driverID uuid.UUID, notes string) (domain.TripRequest, error)

	// ExpireOverdue moves every PENDING request whose TTL has elapsed to
	// EXPIRED and returns the affected requests. The guard on status makes
	// the sweep safe against a concurrent driver response: a request that
	// was just accepted or rejected is silently skipped.
	ExpireOverdue(ctx context.Context, now time.Time) ([]domain.TripRequest, error)
}

// pgRequestRepo is the Postgres implementation of RequestRepo.
type pgRequestRepo struct {
	db db
}

// NewRequestRepo constructs a RequestRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewRequestRepo(db db) RequestRepo {
	return &pgRequestRepo{db: db}
}

// Create inserts a new PENDING request row.
func (r *pgRequestRepo) Create(ctx context.Context, tripID, driverID uuid.UUID, expiresAt time.Time) (domain.TripRequest, error) {
	const q = `
		INSERT INTO trip_requests (trip_id, driver_id, status, expires_at)
		VALUES (@trip_id, @driver_id, 'PENDING', @expires_at)
		RETURNING ` + requestColumns

	args := pgx.NamedArgs{
		"trip_id":    tripID,
		"driver_id":  driverID,
		"expires_at": expiresAt,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.Create: %w", domain.ErrDuplicateRequest)
		}
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a request by primary key.
func (r *pgRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.TripRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanRequest(row)
	if err != nil {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.GetByID: %w", err)
	}
	return result, nil
}

// ListByTrip returns all requests for a trip ordered by creation descending.
func (r *pgRequestRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.TripRequest, error) {
	const q = `
		SELECT ` + requestColumns + `
		FROM trip_requests
		WHERE trip_id = @trip_id
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	var requests []domain.TripRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RequestRepo.ListByTrip: scan: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.ListByTrip: rows: %w", err)
	}

	return requests, nil
}

// MarkRejected conditionally resolves a request as REJECTED.
func (r *pgRequestRepo) MarkRejected(ctx context.Context, id, driverID uuid.UUID, notes string) (domain.TripRequest, error) {
	const q = `
		UPDATE trip_requests
		SET status       = 'REJECTED',
		    responded_at = now(),
		    notes        = @notes
		WHERE id = @id
		  AND driver_id = @driver_id
		  AND status = 'PENDING'
		  AND expires_at > now()
		RETURNING ` + requestColumns

	args := pgx.NamedArgs{"id": id, "driver_id": driverID, "notes": notes}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanRequest(row)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.MarkRejected: %w", err)
	}

	cause := classifyRespondFailure(ctx, r.db, id, driverID)
	return domain.TripRequest{}, fmt.Errorf("repo.RequestRepo.MarkRejected: %w", cause)
}

// ExpireOverdue sweeps all overdue PENDING requests to EXPIRED.
func (r *pgRequestRepo) ExpireOverdue(ctx context.Context, now time.Time) ([]domain.TripRequest, error) {
	const q = `
		UPDATE trip_requests
		SET status = 'EXPIRED'
		WHERE status = 'PENDING'
		  AND expires_at <= @now
		RETURNING ` + requestColumns

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"now": now})
	if err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.ExpireOverdue: %w", err)
	}
	defer rows.Close()

	var expired []domain.TripRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.RequestRepo.ExpireOverdue: scan: %w", err)
		}
		expired = append(expired, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RequestRepo.ExpireOverdue: rows: %w", err)
	}

	return expired, nil
}

// classifyRespondFailure explains why a guarded respond update matched no
// rows. The request is re-read without the guard and its state mapped onto
// the respond error taxonomy:
//
//   - missing row, or a row owned by a different driver → ErrNotFound
//   - already ACCEPTED or REJECTED → ErrAlreadyResolved
//   - EXPIRED with the TTL genuinely elapsed, or still PENDING but overdue
//     (sweep has not run yet) → ErrExpired
//   - EXPIRED while the TTL had time left → ErrConflict; the request was
//     force-expired because another driver won the trip
func classifyRespondFailure(ctx context.Context, db db, id, driverID uuid.UUID) error {
	const q = `SELECT ` + requestColumns + ` FROM trip_requests WHERE id = @id`

	row := db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	if req.DriverID != driverID {
		return domain.ErrNotFound
	}

	switch req.Status {
	case domain.RequestAccepted, domain.RequestRejected:
		return domain.ErrAlreadyResolved
	case domain.RequestExpired:
		if req.Expired(time.Now()) {
			return domain.ErrExpired
		}
		return domain.ErrConflict
	default: // still PENDING: the guard can only have failed on the clock
		return domain.ErrExpired
	}
}

// scanRequest maps a single database row into a domain.TripRequest.
func scanRequest(s scanner) (domain.TripRequest, error) {
	var (
		req         domain.TripRequest
		id          pgtype.UUID
		tripID      pgtype.UUID
		driverID    pgtype.UUID
		status      string
		respondedAt pgtype.Timestamptz
		notes       pgtype.Text
	)

	err := s.Scan(&id, &tripID, &driverID, &status, &req.ExpiresAt, &respondedAt, &notes, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TripRequest{}, domain.ErrNotFound
		}
		return domain.TripRequest{}, err
	}

	req.ID = uuid.UUID(id.Bytes)
	req.TripID = uuid.UUID(tripID.Bytes)
	req.DriverID = uuid.UUID(driverID.Bytes)
	req.Status = domain.RequestStatus(status)
	if respondedAt.Valid {
		at := respondedAt.Time
		req.RespondedAt = &at
	}
	if notes.Valid {
		req.Notes = notes.String
	}

	return req, nil
}
