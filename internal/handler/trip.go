package handler

import (
	"net/http"
	"strconv"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// tripResponse is a trip together with its dispatch requests.
type tripResponse struct {
	Trip     domain.Trip          `json:"trip"`
	Requests []domain.TripRequest `json:"requests"`
}

// updateTripStatusRequest is the body for PATCH /trips/{tripID}/status.
type updateTripStatusRequest struct {
	Status domain.TripStatus `json:"status"`
}

// trackingResponse is the body for GET /trips/{tripID}/tracking.
type trackingResponse struct {
	Data []domain.TrackingLog `json:"data"`
}

// CreateTrip handles POST /trips.
// It creates a PENDING trip ready for dispatch; the full booking flow lives
// in an out-of-scope service.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.trips.Create(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, trip)
}

// GetTrip handles GET /trips/{tripID}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.pathUUID(w, r, "tripID")
	if !ok {
		return
	}

	trip, requests, err := s.trips.GetByID(r.Context(), tripID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tripResponse{Trip: trip, Requests: requests})
}

// UpdateTripStatus handles PATCH /trips/{tripID}/status.
// It applies one lifecycle transition.
func (s *Server) UpdateTripStatus(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.pathUUID(w, r, "tripID")
	if !ok {
		return
	}

	var body updateTripStatusRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, requestBody("invalid request body"))
		return
	}

	trip, err := s.trips.UpdateStatus(r.Context(), tripID, body.Status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, trip)
}

// GetTripTracking handles GET /trips/{tripID}/tracking.
// Supports ?limit= (default 20, max 100); fixes come back newest first.
func (s *Server) GetTripTracking(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.pathUUID(w, r, "tripID")
	if !ok {
		return
	}

	var limit *int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, requestBody("limit must be an integer"))
			return
		}
		limit = &n
	}

	logs, err := s.tracking.Recent(r.Context(), tripID, domain.NewTrackingQuery(limit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, trackingResponse{Data: logs})
}
