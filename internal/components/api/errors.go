// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"net/http"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication
	ReasonUnauthenticated = "unauthenticated"
	ReasonSessionExpired  = "session_expired"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Request validation
	ReasonBadRequest         = "bad_request"
	ReasonValidationFailed   = "validation_failed"
	ReasonPreconditionFailed = "precondition_failed"
	ReasonMethodNotAllowed   = "method_not_allowed"
	ReasonNotFound           = "not_found"
	ReasonConflict           = "conflict"
	ReasonGone               = "gone"

	// Outbound calls
	ReasonSSRFBlocked          = "ssrf_blocked"
	ReasonExternalServiceError = "external_service_error"

	// Server errors
	ReasonNotConfigured = "not_configured"
	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "Not Found")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	WriteJSON(w, statusCode, ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	})
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteConflict writes a 409 Conflict error.
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, ReasonConflict, message)
}

// WriteGone writes a 410 Gone error.
func WriteGone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, ReasonGone, message)
}

// WriteMethodNotAllowed writes a 405 and advertises the allowed methods.
func WriteMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	WriteError(w, http.StatusMethodNotAllowed, ReasonMethodNotAllowed, "Method not allowed")
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// WriteNotConfigured writes a 500 for missing deployment configuration.
func WriteNotConfigured(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonNotConfigured, message)
}

// WriteExternalError writes a 500 for a failed dependency call.
func WriteExternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonExternalServiceError, message)
}
