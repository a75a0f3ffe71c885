package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

// errorResponse is the JSON envelope for every error the API returns.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestBody returns an errorResponse for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) errorResponse {
	return errorResponse{Error: errorDetail{Code: "validation_error", Message: message}}
}

// sentinels maps each domain error onto its HTTP status and stable error
// code. Order matters only in that every entry is disjoint.
var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{domain.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{domain.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrExpired, http.StatusGone, "expired"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
}

// respondError maps a service error onto the HTTP error taxonomy and writes
// the envelope. Unrecognized errors become an opaque 503: request-path
// operations surface transient infrastructure failures to the caller rather
// than silently retrying, to avoid duplicate side effects.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range sentinels {
		if errors.Is(err, m.err) {
			s.writeJSON(w, m.status, errorResponse{
				Error: errorDetail{Code: m.code, Message: unwrapMessage(err, m.err)},
			})
			return
		}
	}

	s.logger.ErrorContext(r.Context(), "internal error",
		"method", r.Method, "path", r.URL.Path, "error", err)
	s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{
		Error: errorDetail{Code: "unavailable", Message: "temporarily unavailable"},
	})
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel
// error, e.g. "service.DispatchService.SendRequest: validation error:
// driver is not available" → "driver is not available". Falls back to the
// sentinel's own message when no detail was attached.
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	i := strings.Index(msg, sentinel.Error())
	if i < 0 {
		return sentinel.Error()
	}
	msg = msg[i:]
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
