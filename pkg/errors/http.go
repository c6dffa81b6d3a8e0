package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Checked in order; the first sentinel found in the chain wins
var errorStatusCodes = []struct {
	target error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrEmptyUpload, http.StatusBadRequest},
	{ErrMalformedCSV, http.StatusBadRequest},
	{ErrMissingColumns, http.StatusBadRequest},
	{ErrUploadTooLarge, http.StatusRequestEntityTooLarge},
	{ErrResourceExhausted, http.StatusTooManyRequests},
	{ErrUnavailable, http.StatusServiceUnavailable},
	{ErrCanceled, http.StatusRequestTimeout},
	{ErrInternalError, http.StatusInternalServerError},
}

// Error code to HTTP status mapping, used when no sentinel is in the chain
var errorCodeStatusMap = map[string]int{
	CodeNotFound:          http.StatusNotFound,
	CodeInvalidInput:      http.StatusBadRequest,
	CodeInternalError:     http.StatusInternalServerError,
	CodeUnavailable:       http.StatusServiceUnavailable,
	CodeResourceExhausted: http.StatusTooManyRequests,
	CodeEmptyUpload:       http.StatusBadRequest,
	CodeMalformedCSV:      http.StatusBadRequest,
	CodeMissingColumns:    http.StatusBadRequest,
	CodeUploadTooLarge:    http.StatusRequestEntityTooLarge,
}

// WriteError writes a standardized JSON error response
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	switch {
	case err == nil:
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{"error": "Unknown error"}
	case errors.As(err, &serr):
		statusCode = HTTPStatusFromError(err)
		response = serr.AsJSON()
		response["error"] = err.Error()
	default:
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{"error": err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, m := range errorStatusCodes {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	if code, ok := errorCodeStatusMap[GetErrorCode(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}
