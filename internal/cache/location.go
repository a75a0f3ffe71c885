// Package cache implements the driver last-known-location cache on Redis.
// The cache is written as a side effect of every ingested fix and read by
// observers that need an initial snapshot before joining a live channel.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// locationTTL bounds staleness: a driver that stops reporting disappears
// from the cache after this long rather than serving a stale snapshot
// forever.
const locationTTL = 24 * time.Hour

// LocationCache stores one JSON-encoded domain.DriverLocation per driver.
// It satisfies service.LocationCache.
type LocationCache struct {
	rdb *redis.Client
}

// NewLocationCache constructs a LocationCache on the given Redis client.
func NewLocationCache(rdb *redis.Client) *LocationCache {
	return &LocationCache{rdb: rdb}
}

// key returns the Redis key for a driver's last-known location.
func key(driverID uuid.UUID) string {
	return "driver:lastloc:" + driverID.String()
}

// SetDriverLocation overwrites the driver's snapshot.
func (c *LocationCache) SetDriverLocation(ctx context.Context, loc domain.DriverLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("cache.LocationCache.SetDriverLocation: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, key(loc.DriverID), payload, locationTTL).Err(); err != nil {
		return fmt.Errorf("cache.LocationCache.SetDriverLocation: %w", err)
	}
	return nil
}

// GetDriverLocation returns the driver's snapshot, or domain.ErrNotFound
// when the driver has no cached fix.
func (c *LocationCache) GetDriverLocation(ctx context.Context, driverID uuid.UUID) (domain.DriverLocation, error) {
	payload, err := c.rdb.Get(ctx, key(driverID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DriverLocation{}, fmt.Errorf("cache.LocationCache.GetDriverLocation: %w", domain.ErrNotFound)
		}
		return domain.DriverLocation{}, fmt.Errorf("cache.LocationCache.GetDriverLocation: %w", err)
	}

	var loc domain.DriverLocation
	if err := json.Unmarshal(payload, &loc); err != nil {
		return domain.DriverLocation{}, fmt.Errorf("cache.LocationCache.GetDriverLocation: unmarshal: %w", err)
	}
	return loc, nil
}
