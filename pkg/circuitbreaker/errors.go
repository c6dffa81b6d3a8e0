package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// OpenError is returned for calls rejected by an open circuit
type OpenError struct {
	CircuitName string
	RetryAt     time.Time
}

// Error implements the error interface
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open until %s", e.CircuitName, e.RetryAt.Format(time.RFC3339))
}

// IsOpenError reports whether err, or an error it wraps, is an *OpenError
func IsOpenError(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}
