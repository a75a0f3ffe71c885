package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// ingestRequest is the body for POST /tracking.
type ingestRequest struct {
	TripID    uuid.UUID `json:"trip_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

// IngestLocation handles POST /tracking.
// It accepts one position fix from the driver of an active trip.
func (s *Server) IngestLocation(w http.ResponseWriter, r *http.Request) {
	var body ingestRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, requestBody("invalid request body"))
		return
	}
	if body.TripID == uuid.Nil || body.DriverID == uuid.Nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, requestBody("trip_id and driver_id are required"))
		return
	}

	stored, err := s.tracking.Ingest(r.Context(), domain.TrackingLog{
		TripID:    body.TripID,
		DriverID:  body.DriverID,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Speed:     body.Speed,
		Heading:   body.Heading,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, stored)
}

// GetDriverLocation handles GET /drivers/{driverID}/location.
// It returns the driver's cached last-known location — the initial snapshot
// for an observer about to join the live channel, which replays no history.
func (s *Server) GetDriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID, ok := s.pathUUID(w, r, "driverID")
	if !ok {
		return
	}

	loc, err := s.tracking.LastKnown(r.Context(), driverID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, loc)
}
