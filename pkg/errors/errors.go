package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternalError     = errors.New("internal error")
	ErrUnavailable       = errors.New("service unavailable")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCanceled          = errors.New("operation canceled")

	// Upload batch failures. Nothing is stored when one of these is returned.
	ErrEmptyUpload    = errors.New("upload is empty")
	ErrMalformedCSV   = errors.New("malformed CSV")
	ErrMissingColumns = errors.New("required columns missing")
	ErrUploadTooLarge = errors.New("upload too large")
)

// Error codes carried by structured errors
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeUnavailable       = "UNAVAILABLE"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeEmptyUpload       = "EMPTY_UPLOAD"
	CodeMalformedCSV      = "MALFORMED_CSV"
	CodeMissingColumns    = "MISSING_COLUMNS"
	CodeUploadTooLarge    = "UPLOAD_TOO_LARGE"
)

// Error represents a structured error with its creation site and additional context
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

func build(original error, message, code string, skip int, fields []map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip + 1)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return build(errors.New(message), "", "", 1, fields)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(err, message, GetErrorCode(err), 1, fields)
}

// Wrapf is Wrap with a formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(err, fmt.Sprintf(format, args...), GetErrorCode(err), 1, nil)
}

func (e *Error) clone(extra int) *Error {
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+extra),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return result
}

// WithField returns a copy of the error carrying key=value
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields returns a copy of the error carrying the given fields
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode returns a copy of the error with a different code
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	idx := strings.LastIndex(e.file, "/")
	return fmt.Sprintf("%s:%d", e.file[idx+1:], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

// NewNotFound creates an ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return build(ErrNotFound, message, CodeNotFound, 1, fields)
}

// NewInvalidInput creates an ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return build(ErrInvalidInput, message, CodeInvalidInput, 1, fields)
}

// NewInternalError creates an ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	return build(ErrInternalError, message, CodeInternalError, 1, fields)
}

// NewEmptyUpload reports an upload with no header row
func NewEmptyUpload(fields ...map[string]interface{}) *Error {
	return build(ErrEmptyUpload, "", CodeEmptyUpload, 1, fields)
}

// NewMalformedCSV reports a CSV syntax error
func NewMalformedCSV(cause error, fields ...map[string]interface{}) *Error {
	return build(ErrMalformedCSV, cause.Error(), CodeMalformedCSV, 1, fields)
}

// NewMissingColumns reports the required columns absent from an upload header
func NewMissingColumns(columns []string) *Error {
	err := build(ErrMissingColumns, strings.Join(columns, ", "), CodeMissingColumns, 1, nil)
	err.fields["missing"] = columns
	return err
}

// NewUploadTooLarge reports an upload over the configured size cap
func NewUploadTooLarge(limitBytes int64) *Error {
	return build(ErrUploadTooLarge, fmt.Sprintf("limit is %d bytes", limitBytes), CodeUploadTooLarge, 1,
		[]map[string]interface{}{{"limit_bytes": limitBytes}})
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}

// Is is errors.Is re-exported so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As re-exported
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
