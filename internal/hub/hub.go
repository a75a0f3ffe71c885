// Package hub implements the in-process broadcast layer for live driver
// locations. Each driver has one logical topic; a driver's ingest path is
// the only publisher for its topic, and any number of observers may join.
//
// Delivery is best-effort by design: publish never blocks, a slow subscriber
// loses frames instead of stalling ingestion, and joining replays no history
// (observers needing initial state read the last-known-location cache).
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// defaultBuffer is the per-subscriber channel depth. A subscriber that falls
// this many frames behind starts losing the oldest pending frames.
const defaultBuffer = 16

// Hub is the topic registry. The zero value is not usable; call New.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	topics map[uuid.UUID]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan domain.DriverLocation
	once sync.Once // guards channel close across unsubscribe and hub Close
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// New constructs an empty Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		buffer: defaultBuffer,
		topics: make(map[uuid.UUID]map[*subscriber]struct{}),
	}
}

// Subscribe joins the observer to the driver's topic and returns the frame
// channel plus a leave function. The channel is closed when the observer
// leaves or the hub shuts down; leaving is idempotent and releases only this
// observer's resources.
func (h *Hub) Subscribe(driverID uuid.UUID) (<-chan domain.DriverLocation, func()) {
	sub := &subscriber{ch: make(chan domain.DriverLocation, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	subs, ok := h.topics[driverID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.topics[driverID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber joined", "driver_id", driverID)

	leave := func() {
		h.mu.Lock()
		if subs, ok := h.topics[driverID]; ok {
			if _, member := subs[sub]; member {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.topics, driverID)
				}
			}
		}
		h.mu.Unlock()
		sub.close()
		h.logger.Debug("subscriber left", "driver_id", driverID)
	}
	return sub.ch, leave
}

// Publish fans a location frame out to every current subscriber of the
// driver's topic. It never blocks: a subscriber whose buffer is full simply
// misses the frame.
func (h *Hub) Publish(driverID uuid.UUID, loc domain.DriverLocation) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for sub := range h.topics[driverID] {
		select {
		case sub.ch <- loc:
		default:
			h.logger.Debug("dropping frame for slow subscriber", "driver_id", driverID)
		}
	}
}

// SubscriberCount reports the current number of observers on a driver's topic.
func (h *Hub) SubscriberCount(driverID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[driverID])
}

// Close shuts the hub down: all subscriber channels are closed and further
// publishes and subscriptions become no-ops. Called once at process shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.topics {
		for sub := range subs {
			sub.close()
		}
	}
	h.topics = make(map[uuid.UUID]map[*subscriber]struct{})
}
