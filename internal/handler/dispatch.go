package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// createDispatchRequest is the body for POST /dispatch/requests.
type createDispatchRequest struct {
	TripID   uuid.UUID `json:"trip_id"`
	DriverID uuid.UUID `json:"driver_id"`
}

// respondRequest is the body for POST /dispatch/requests/{requestID}/respond.
type respondRequest struct {
	DriverID uuid.UUID            `json:"driver_id"`
	Action   domain.RespondAction `json:"action"`
	Notes    string               `json:"notes,omitempty"`
}

// respondResponse returns both sides of a resolved handshake.
type respondResponse struct {
	Request domain.TripRequest `json:"request"`
	Trip    domain.Trip        `json:"trip"`
}

// sweepResponse is the body for POST /admin/dispatch/sweep.
type sweepResponse struct {
	Expired int `json:"expired"`
}

// CreateDispatchRequest handles POST /dispatch/requests.
// It offers a trip to a driver with a fresh TTL.
func (s *Server) CreateDispatchRequest(w http.ResponseWriter, r *http.Request) {
	var body createDispatchRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, requestBody("invalid request body"))
		return
	}
	if body.TripID == uuid.Nil || body.DriverID == uuid.Nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, requestBody("trip_id and driver_id are required"))
		return
	}

	request, err := s.dispatch.SendRequest(r.Context(), body.TripID, body.DriverID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, request)
}

// RespondDispatchRequest handles POST /dispatch/requests/{requestID}/respond.
// The driver accepts or rejects an open offer.
func (s *Server) RespondDispatchRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := s.pathUUID(w, r, "requestID")
	if !ok {
		return
	}

	var body respondRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, requestBody("invalid request body"))
		return
	}
	if body.DriverID == uuid.Nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, requestBody("driver_id is required"))
		return
	}
	if !body.Action.IsValid() {
		s.writeJSON(w, http.StatusUnprocessableEntity, requestBody("action must be accept or reject"))
		return
	}

	request, trip, err := s.dispatch.Respond(r.Context(), requestID, body.DriverID, body.Action, body.Notes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, respondResponse{Request: request, Trip: trip})
}

// TriggerSweep handles POST /admin/dispatch/sweep.
// It runs one expiration sweep synchronously, for manual or cron-driven
// recovery, and reports how many offers it expired.
func (s *Server) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := s.dispatch.ExpireOverdue(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sweepResponse{Expired: expired})
}
