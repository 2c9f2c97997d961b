package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MahdiBaghbani/tanzanite-go/internal/components/api"
)

func TestWriteError_EnvelopeShape(t *testing.T) {
	w := httptest.NewRecorder()

	api.WriteError(w, http.StatusBadRequest, api.ReasonPreconditionFailed, "Object 0x1 is not a shared object")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var envelope api.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if envelope.Error.Code != "Bad Request" {
		t.Errorf("expected code 'Bad Request', got %q", envelope.Error.Code)
	}
	if envelope.Error.ReasonCode != api.ReasonPreconditionFailed {
		t.Errorf("expected reason_code %q, got %q", api.ReasonPreconditionFailed, envelope.Error.ReasonCode)
	}
	if envelope.Error.Message != "Object 0x1 is not a shared object" {
		t.Errorf("unexpected message: %q", envelope.Error.Message)
	}
}

func TestWriteError_StableReasonCodes(t *testing.T) {
	codes := map[string]string{
		"unauthenticated":        api.ReasonUnauthenticated,
		"rate_limited":           api.ReasonRateLimited,
		"validation_failed":      api.ReasonValidationFailed,
		"precondition_failed":    api.ReasonPreconditionFailed,
		"method_not_allowed":     api.ReasonMethodNotAllowed,
		"not_found":              api.ReasonNotFound,
		"gone":                   api.ReasonGone,
		"not_configured":         api.ReasonNotConfigured,
		"external_service_error": api.ReasonExternalServiceError,
		"internal_error":         api.ReasonInternalError,
	}

	for expected, actual := range codes {
		if actual != expected {
			t.Errorf("reason code constant changed: expected %q, got %q", expected, actual)
		}
	}
}

func TestWriteHelpers_Status(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantReason string
	}{
		{"unauthorized", func(w http.ResponseWriter) { api.WriteUnauthorized(w, api.ReasonSessionExpired, "expired") }, 401, api.ReasonSessionExpired},
		{"not found", func(w http.ResponseWriter) { api.WriteNotFound(w, "missing") }, 404, api.ReasonNotFound},
		{"conflict", func(w http.ResponseWriter) { api.WriteConflict(w, "exists") }, 409, api.ReasonConflict},
		{"gone", func(w http.ResponseWriter) { api.WriteGone(w, "expired") }, 410, api.ReasonGone},
		{"too many", func(w http.ResponseWriter) { api.WriteTooManyRequests(w, "slow down") }, 429, api.ReasonRateLimited},
		{"not configured", func(w http.ResponseWriter) { api.WriteNotConfigured(w, "no package") }, 500, api.ReasonNotConfigured},
		{"external", func(w http.ResponseWriter) { api.WriteExternalError(w, "rpc down") }, 500, api.ReasonExternalServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var envelope api.ErrorEnvelope
			json.NewDecoder(w.Body).Decode(&envelope)
			if envelope.Error.ReasonCode != tt.wantReason {
				t.Errorf("expected reason_code %q, got %q", tt.wantReason, envelope.Error.ReasonCode)
			}
		})
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteMethodNotAllowed(w, http.MethodGet)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != http.MethodGet {
		t.Errorf("expected Allow GET, got %q", got)
	}
	var envelope api.ErrorEnvelope
	json.NewDecoder(w.Body).Decode(&envelope)
	if envelope.Error.Message != "Method not allowed" {
		t.Errorf("unexpected message: %q", envelope.Error.Message)
	}
}
