// Package handler implements the HTTP handlers for the trip dispatch API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (dispatch.go, trip.go, tracking.go, ws.go) but all share the same
// Server struct so they can access its dependencies.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// DispatchServicer defines the dispatch operations the handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type DispatchServicer interface {
	SendRequest(ctx context.Context, tripID, driverID uuid.UUID) (domain.TripRequest, error)
	Respond(ctx context.Context, requestID, driverID uuid.UUID, action domain.RespondAction, notes string) (domain.TripRequest, domain.Trip, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

// TripServicer defines the trip lifecycle operations the handlers depend on.
type TripServicer interface {
	Create(ctx context.Context) (domain.Trip, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, []domain.TripRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next domain.TripStatus) (domain.Trip, error)
}

// TrackingServicer defines the location operations the handlers depend on.
type TrackingServicer interface {
	Ingest(ctx context.Context, fix domain.TrackingLog) (domain.TrackingLog, error)
	Recent(ctx context.Context, tripID uuid.UUID, q domain.TrackingQuery) ([]domain.TrackingLog, error)
	LastKnown(ctx context.Context, driverID uuid.UUID) (domain.DriverLocation, error)
}

// Subscriber is the slice of the hub the websocket handler depends on.
type Subscriber interface {
	Subscribe(driverID uuid.UUID) (<-chan domain.DriverLocation, func())
}

// Server holds the handlers for all API endpoints.
type Server struct {
	dispatch DispatchServicer
	trips    TripServicer
	tracking TrackingServicer
	hub      Subscriber
	logger   *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(dispatch DispatchServicer, trips TripServicer, tracking TrackingServicer, hub Subscriber, logger *slog.Logger) *Server {
	return &Server{
		dispatch: dispatch,
		trips:    trips,
		tracking: tracking,
		hub:      hub,
		logger:   logger,
	}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Post("/trips", s.CreateTrip)
	r.Get("/trips/{tripID}", s.GetTrip)
	r.Patch("/trips/{tripID}/status", s.UpdateTripStatus)
	r.Get("/trips/{tripID}/tracking", s.GetTripTracking)

	r.Post("/dispatch/requests", s.CreateDispatchRequest)
	r.Post("/dispatch/requests/{requestID}/respond", s.RespondDispatchRequest)
	r.Post("/admin/dispatch/sweep", s.TriggerSweep)

	r.Post("/tracking", s.IngestLocation)
	r.Get("/drivers/{driverID}/location", s.GetDriverLocation)
	r.Get("/ws/drivers/{driverID}", s.ServeDriverWS)
}

// writeJSON writes v as a JSON response body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathUUID parses a UUID path parameter; ok is false if it is malformed
// (the caller is expected to have already responded).
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, requestBody("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
