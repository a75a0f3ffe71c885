package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/okonek/trip-dispatch/backend/internal/scheduler"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSweeper_FirstSweepRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	sweep := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interval far longer than the test: only the immediate sweep can fire.
	s := scheduler.NewSweeper(sweep, time.Hour, discard())
	go s.Run(ctx)

	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
}

func TestSweeper_SweepsEveryInterval(t *testing.T) {
	var calls atomic.Int32
	sweep := func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scheduler.NewSweeper(sweep, 10*time.Millisecond, discard())
	go s.Run(ctx)

	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	sweep := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := scheduler.NewSweeper(sweep, 10*time.Millisecond, discard())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// No further sweeps are scheduled after Run returns.
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}

func TestSweeper_ErrorDoesNotStopFutureSweeps(t *testing.T) {
	var calls atomic.Int32
	sweep := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("transient storage failure")
		}
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scheduler.NewSweeper(sweep, 10*time.Millisecond, discard())
	go s.Run(ctx)

	// The failed first sweep must be followed by more attempts.
	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

func TestSweeper_PanicIsIsolated(t *testing.T) {
	var calls atomic.Int32
	sweep := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := scheduler.NewSweeper(sweep, 10*time.Millisecond, discard())
	go s.Run(ctx)

	// The panicking sweep neither crashes the process nor stops the ticker.
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}
