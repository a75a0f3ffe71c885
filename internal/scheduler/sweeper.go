// Package scheduler runs the periodic expiration sweep that reconciles
// dispatch requests whose TTL elapsed without a response.
//
// The sweep holds no state between runs — every run re-derives its work set
// from current data — so a crash or restart only delays the next sweep and
// can never corrupt dispatch state.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Sweep is one reconciliation pass. It returns the number of requests it
// expired. Implemented by service.DispatchService.ExpireOverdue.
type Sweep func(ctx context.Context) (int, error)

// Sweeper runs a Sweep at a fixed interval.
type Sweeper struct {
	sweep    Sweep
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper. interval is the time between sweeps.
func NewSweeper(sweep Sweep, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{sweep: sweep, interval: interval, logger: logger}
}

// Run executes the first sweep immediately, then one sweep per interval
// until ctx is cancelled. It blocks; start it on its own goroutine.
//
// A failing or panicking sweep is logged and isolated — the next scheduled
// sweep retries independently, and the process never goes down with it.
// Cancellation is safe mid-sweep: each row update inside a sweep is
// independently atomic, so a partial sweep leaves no broken state behind.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiration sweeper starting", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single sweep with panic isolation.
func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep panicked", "panic", r)
		}
	}()

	start := time.Now()
	expired, err := s.sweep(ctx)
	if err != nil {
		// Context cancellation during shutdown is expected, not an error
		// worth alerting on.
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sweep failed", "error", err)
		return
	}

	if expired > 0 {
		s.logger.Info("sweep expired overdue requests",
			"expired", expired,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
