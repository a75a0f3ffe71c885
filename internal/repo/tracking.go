package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// trackingColumns is the canonical SELECT/RETURNING column list for
// tracking_logs, matched by scanTrackingLog.
const trackingColumns = `id, trip_id, driver_id, latitude, longitude, speed, heading, recorded_at`

// activeTripStatuses mirrors domain.ActiveStatuses for the SQL guard, so the
// set of fix-accepting states is defined in one place.
var activeTripStatuses = func() []string {
	statuses := domain.ActiveStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}()

// TrackingRepo defines the persistence operations for tracking logs.
type TrackingRepo interface {
	// InsertActive appends a fix, but only when the trip is in an active
	// status, assigned to the given driver, and the driver has tracking
	// enabled. The guard lives inside the INSERT statement so validity check
	// and append cannot race a concurrent trip transition. Returns
	// domain.ErrInvalidState when the guard matches no trip row.
	InsertActive(ctx context.Context, log domain.TrackingLog) (domain.TrackingLog, error)

	// RecentByTrip returns the most recent fixes for a trip ordered by
	// recorded_at descending, newest first.
	RecentByTrip(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.TrackingLog, error)
}

// pgTrackingRepo is the Postgres implementation of TrackingRepo.
type pgTrackingRepo struct {
	db db
}

// NewTrackingRepo constructs a TrackingRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTrackingRepo(db db) TrackingRepo {
	return &pgTrackingRepo{db: db}
}

// InsertActive appends a fix guarded on the trip being live for this driver
// and the driver's tracking flag being on.
func (r *pgTrackingRepo) InsertActive(ctx context.Context, log domain.TrackingLog) (domain.TrackingLog, error) {
	const q = `
		INSERT INTO tracking_logs (trip_id, driver_id, latitude, longitude, speed, heading, recorded_at)
		SELECT t.id, @driver_id, @latitude, @longitude, @speed, @heading, @recorded_at
		FROM trips t
		WHERE t.id = @trip_id
		  AND t.driver_id = @driver_id
		  AND t.status = ANY(@active_statuses)
		  AND EXISTS (
		      SELECT 1 FROM drivers d
		      WHERE d.id = @driver_id
		        AND d.tracking_enabled)
		RETURNING ` + trackingColumns

	args := pgx.NamedArgs{
		"trip_id":         log.TripID,
		"driver_id":       log.DriverID,
		"latitude":        log.Latitude,
		"longitude":       log.Longitude,
		"speed":           log.Speed,
		"heading":         log.Heading,
		"recorded_at":     log.RecordedAt,
		"active_statuses": activeTripStatuses,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrackingLog(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TrackingLog{}, fmt.Errorf("repo.TrackingRepo.InsertActive: %w", domain.ErrInvalidState)
		}
		return domain.TrackingLog{}, fmt.Errorf("repo.TrackingRepo.InsertActive: %w", err)
	}
	return result, nil
}

// RecentByTrip returns the most recent fixes for a trip, newest first.
func (r *pgTrackingRepo) RecentByTrip(ctx context.Context, tripID uuid.UUID, limit int) ([]domain.TrackingLog, error) {
	const q = `
		SELECT ` + trackingColumns + `
		FROM tracking_logs
		WHERE trip_id = @trip_id
		ORDER BY recorded_at DESC
		LIMIT @limit`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("repo.TrackingRepo.RecentByTrip: %w", err)
	}
	defer rows.Close()

	var logs []domain.TrackingLog
	for rows.Next() {
		l, err := scanTrackingLog(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TrackingRepo.RecentByTrip: scan: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TrackingRepo.RecentByTrip: rows: %w", err)
	}

	return logs, nil
}

// scanTrackingLog maps a single database row into a domain.TrackingLog.
func scanTrackingLog(s scanner) (domain.TrackingLog, error) {
	var (
		l        domain.TrackingLog
		id       pgtype.UUID
		tripID   pgtype.UUID
		driverID pgtype.UUID
		speed    pgtype.Float8
		heading  pgtype.Float8
	)

	err := s.Scan(&id, &tripID, &driverID, &l.Latitude, &l.Longitude, &speed, &heading, &l.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackingLog{}, domain.ErrNotFound
		}
		return domain.TrackingLog{}, err
	}

	l.ID = uuid.UUID(id.Bytes)
	l.TripID = uuid.UUID(tripID.Bytes)
	l.DriverID = uuid.UUID(driverID.Bytes)
	if speed.Valid {
		v := speed.Float64
		l.Speed = &v
	}
	if heading.Valid {
		v := heading.Float64
		l.Heading = &v
	}

	return l, nil
}
