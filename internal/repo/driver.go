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

const driverColumns = `id, name, available, tracking_enabled, created_at, updated_at`

// DriverRepo defines the persistence operations for the driver slice this
// service owns (availability and the tracking flag).
type DriverRepo interface {
	// Create inserts a driver row. Used by seeding and tests; drivers are
	// normally provisioned by the out-of-scope user service.
	Create(ctx context.Context, name string) (domain.Driver, error)

	// GetByID retrieves a driver by primary key.
	// Returns domain.ErrNotFound if no driver with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Driver, error)

	// SetAvailable flips the driver's dispatch availability.
	// Returns domain.ErrNotFound if the driver does not exist.
	SetAvailable(ctx context.Context, id uuid.UUID, available bool) error

	// SetTrackingEnabled flips the driver's tracking flag. While off, the
	// driver's location fixes are refused at ingest.
	// Returns domain.ErrNotFound if the driver does not exist.
	SetTrackingEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

type pgDriverRepo struct {
	db db
}

// NewDriverRepo constructs a DriverRepo backed by the provided db connection.
func NewDriverRepo(db db) DriverRepo {
	return &pgDriverRepo{db: db}
}

func (r *pgDriverRepo) Create(ctx context.Context, name string) (domain.Driver, error) {
	const q = `
		INSERT INTO drivers (name)
		VALUES (@name)
		RETURNING ` + driverColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": name})
	result, err := scanDriver(row)
	if err != nil {
		return domain.Driver{}, fmt.Errorf("repo.DriverRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgDriverRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Driver, error) {
	const q = `SELECT ` + driverColumns + ` FROM drivers WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanDriver(row)
	if err != nil {
		return domain.Driver{}, fmt.Errorf("repo.DriverRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgDriverRepo) SetAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	const q = `
		UPDATE drivers
		SET available  = @available,
		    updated_at = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "available": available})
	if err != nil {
		return fmt.Errorf("repo.DriverRepo.SetAvailable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.DriverRepo.SetAvailable: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgDriverRepo) SetTrackingEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	const q = `
		UPDATE drivers
		SET tracking_enabled = @enabled,
		    updated_at       = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "enabled": enabled})
	if err != nil {
		return fmt.Errorf("repo.DriverRepo.SetTrackingEnabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.DriverRepo.SetTrackingEnabled: %w", domain.ErrNotFound)
	}
	return nil
}

// scanDriver maps a single database row into a domain.Driver.
func scanDriver(s scanner) (domain.Driver, error) {
	var (
		d  domain.Driver
		id pgtype.UUID
	)

	err := s.Scan(&id, &d.Name, &d.Available, &d.TrackingEnabled, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Driver{}, domain.ErrNotFound
		}
		return domain.Driver{}, err
	}

	d.ID = uuid.UUID(id.Bytes)
	return d, nil
}
