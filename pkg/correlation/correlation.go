// Package correlation tags each API request with an id that follows it
// through handlers, service calls and log lines.
package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Header names checked for an incoming correlation id, in order
const (
	HTTPHeader          = "X-Correlation-ID"
	HTTPRequestIDHeader = "X-Request-ID"
)

type contextKey int

const (
	requestInfoKey contextKey = iota
)

// ID represents a correlation ID
type ID string

// String returns the ID as text
func (id ID) String() string {
	return string(id)
}

// IsEmpty returns true if the correlation ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// New generates a random correlation id
func New() ID {
	return ID(uuid.NewString())
}

// FromString returns s as an ID, generating a new one when s is empty
func FromString(s string) ID {
	if s == "" {
		return New()
	}
	return ID(s)
}

// RequestInfo is what the middleware records about a request
type RequestInfo struct {
	CorrelationID ID
	StartTime     time.Time
	ClientIP      string
	Method        string
	Path          string
}

// ToContext attaches the request info to ctx
func (r *RequestInfo) ToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestInfoKey, r)
}

// Duration returns the time elapsed since the request started
func (r *RequestInfo) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// InfoFromContext returns the request info stored by the middleware, if any
func InfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(requestInfoKey).(*RequestInfo)
	return info, ok
}

// WithCorrelationID returns a context carrying only a correlation id.
// Background work started from a request uses it to keep the id in its logs.
func WithCorrelationID(ctx context.Context, id ID) context.Context {
	return (&RequestInfo{CorrelationID: id, StartTime: time.Now()}).ToContext(ctx)
}

// FromContext extracts the correlation ID from a context
func FromContext(ctx context.Context) ID {
	if info, ok := InfoFromContext(ctx); ok {
		return info.CorrelationID
	}
	return ""
}

// FromContextOrNew extracts the correlation ID from context or generates a new one
func FromContextOrNew(ctx context.Context) ID {
	id := FromContext(ctx)
	if id.IsEmpty() {
		return New()
	}
	return id
}
