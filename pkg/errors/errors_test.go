package errors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Code != CodeValidation {
		t.Errorf("expected code %s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "resource not found",
			},
			expected: "NOT_FOUND: resource not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "internal error",
				Err:     errors.New("database connection failed"),
			},
			expected: "INTERNAL_ERROR: internal error (caused by: database connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := Wrap(originalErr, CodeInternal, "wrapped", http.StatusInternalServerError)

	if errors.Unwrap(appErr) != originalErr {
		t.Errorf("Unwrap() should return original error")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"NotFound", NotFound("Lot"), CodeNotFound, http.StatusNotFound},
		{"Validation", Validation("bad input", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"InvalidInput", InvalidInput("invalid request"), CodeInvalidInput, http.StatusBadRequest},
		{"Unauthorized", Unauthorized("authentication required"), CodeUnauthorized, http.StatusUnauthorized},
		{"Forbidden", Forbidden("access denied"), CodeForbidden, http.StatusForbidden},
		{"AccessDenied", AccessDenied(), CodeForbidden, http.StatusForbidden},
		{"Conflict", Conflict("already exists"), CodeConflict, http.StatusConflict},
		{"Busy", Busy("Booking"), CodeBusy, http.StatusConflict},
		{"Timeout", Timeout("request timed out"), CodeTimeout, http.StatusGatewayTimeout},
		{"Unavailable", Unavailable("Identity Service"), CodeUnavailable, http.StatusServiceUnavailable},
		{"Internal", Internal("boom", errors.New("db down")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, tt.err.StatusCode())
			}
		})
	}
}

func TestAccessDenied_DoesNotLeakDetails(t *testing.T) {
	err := AccessDenied()

	if err.Details != nil {
		t.Errorf("AccessDenied() must carry no details, got %v", err.Details)
	}
	if err.Message != "Access denied" {
		t.Errorf("AccessDenied() message = %q, want generic 'Access denied'", err.Message)
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := NotFoundWithID("Booking", "12345")

	if err.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, err.Code)
	}
	if err.Details["id"] != "12345" {
		t.Errorf("expected id '12345', got %v", err.Details["id"])
	}
	if err.Details["resource"] != "Booking" {
		t.Errorf("expected resource 'Booking', got %v", err.Details["resource"])
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(NotFound("Lot")) {
		t.Errorf("IsAppError() should return true for AppError")
	}
	if IsAppError(errors.New("regular error")) {
		t.Errorf("IsAppError() should return false for regular error")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Lot")
	if AsAppError(appErr) != appErr {
		t.Errorf("AsAppError() should return same AppError")
	}

	regularErr := errors.New("regular error")
	wrapped := AsAppError(regularErr)
	if wrapped.Code != CodeInternal {
		t.Errorf("AsAppError() should wrap regular error as internal error")
	}
	if wrapped.Err != regularErr {
		t.Errorf("AsAppError() should wrap the original error")
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(Busy("Lot"), CodeBusy) {
		t.Errorf("HasCode() should match the error's code")
	}
	if HasCode(errors.New("plain"), CodeBusy) {
		t.Errorf("HasCode() should be false for non-AppError")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	err := NotFoundWithID("Booking", "12345")
	data := string(err.ToJSON())

	if !strings.Contains(data, "NOT_FOUND") {
		t.Errorf("ToJSON() should contain error code")
	}
	if !strings.Contains(data, "not found") {
		t.Errorf("ToJSON() should contain error message")
	}
}
