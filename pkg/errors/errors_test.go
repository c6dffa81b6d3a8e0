package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if err.Error() != "test error" {
		t.Errorf("Expected 'test error', got: %s", err.Error())
	}

	if !strings.HasPrefix(err.Location(), "errors_test.go:") {
		t.Errorf("Location should point at the caller, got: %s", err.Location())
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if err.Error() != "wrapped: base error" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	if errors.Unwrap(err) != baseErr {
		t.Errorf("Unwrap() returned wrong error")
	}

	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapKeepsCode(t *testing.T) {
	err := Wrap(NewMissingColumns([]string{"Date"}), "parse upload")
	if err.GetCode() != CodeMissingColumns {
		t.Errorf("Expected code %s, got %s", CodeMissingColumns, err.GetCode())
	}
	if !errors.Is(err, ErrMissingColumns) {
		t.Error("Wrapped error should match ErrMissingColumns")
	}
}

func TestWithFieldDoesNotMutate(t *testing.T) {
	base := New("test error")
	withField := base.WithField("key", "value")

	if len(base.GetFields()) != 0 {
		t.Error("WithField modified the original error")
	}
	if withField.GetFields()["key"] != "value" {
		t.Error("Field not set")
	}

	multi := withField.WithFields(map[string]interface{}{"a": 1, "b": 2})
	if len(multi.GetFields()) != 3 {
		t.Errorf("Expected 3 fields, got %d", len(multi.GetFields()))
	}
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		status int
	}{
		{"empty upload", NewEmptyUpload(), ErrEmptyUpload, http.StatusBadRequest},
		{"malformed", NewMalformedCSV(fmt.Errorf("bare quote")), ErrMalformedCSV, http.StatusBadRequest},
		{"missing columns", NewMissingColumns([]string{"Users", "Remote"}), ErrMissingColumns, http.StatusBadRequest},
		{"too large", NewUploadTooLarge(1024), ErrUploadTooLarge, http.StatusRequestEntityTooLarge},
		{"not found", NewNotFound("no upload"), ErrNotFound, http.StatusNotFound},
		{"invalid", NewInvalidInput("bad body"), ErrInvalidInput, http.StatusBadRequest},
		{"internal", NewInternalError("boom"), ErrInternalError, http.StatusInternalServerError},
		{"wrapped std", fmt.Errorf("outer: %w", ErrInvalidInput), ErrInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if got := HTTPStatusFromError(tt.err); got != tt.status {
				t.Errorf("HTTPStatusFromError() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	err := New("slow down").WithCode(CodeResourceExhausted)
	if got := HTTPStatusFromError(err); got != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", got)
	}
	if got := HTTPStatusFromError(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, Wrap(NewMissingColumns([]string{"Date"}), "import failed"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Unexpected content type %q", ct)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["code"] != CodeMissingColumns {
		t.Errorf("Expected code %s, got %v", CodeMissingColumns, body["code"])
	}
	if !strings.Contains(body["error"].(string), "import failed") {
		t.Errorf("Unexpected error text: %v", body["error"])
	}
}

func TestWriteErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("plain failure"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "plain failure") {
		t.Errorf("Body should contain message: %s", rec.Body.String())
	}
}
