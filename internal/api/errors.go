package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

// Error represents a structured error response.
type Error struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	DriverID string `json:"driver_id,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeDriver         = "driver_error"
	ErrCodeUnavailable    = "connection_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// faultCodes maps each fault kind to its response code.
var faultCodes = map[fault.Kind]string{
	fault.NotFound:       ErrCodeNotFound,
	fault.BadRequest:     ErrCodeBadRequest,
	fault.Validation:     ErrCodeValidation,
	fault.Driver:         ErrCodeDriver,
	fault.Connection:     ErrCodeUnavailable,
	fault.Authentication: ErrCodeUnauthorized,
	fault.Internal:       ErrCodeInternal,
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeFault maps a classified error onto its status code. Internal
// errors are logged and their cause is not exposed.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status := kind.Code()
	resp := Error{
		Status:  status,
		Code:    faultCodes[kind],
		Message: err.Error(),
	}
	if fe := fault.As(err); fe != nil {
		resp.DriverID = fe.DriverID
		resp.Details = fe.Details
		if fe.Message != "" {
			resp.Message = fe.Message
		}
	}

	switch kind {
	case fault.Internal:
		s.logger.Error("request failed",
			"path", r.URL.Path, "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
		resp.Message = "internal server error"
	case fault.Driver, fault.Connection:
		s.logger.Warn("request failed",
			"path", r.URL.Path, "kind", kind, "driver_id", resp.DriverID, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
	}

	writeJSON(w, status, resp)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
