package dashboard

import (
	"context"
	"time"
)

// Dataset event types
const (
	EventImported = "dataset.imported"
	EventCreated  = "dataset.created"
	EventDeleted  = "dataset.deleted"
	EventCleared  = "dataset.cleared"
)

// Event tells listeners that the stored dataset changed and cached views
// should be refreshed
type Event struct {
	Type          string    `json:"type"`
	UploadIDs     []string  `json:"uploadIds,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	Mode          string    `json:"mode,omitempty"`
	Changed       int       `json:"changed"`
	Total         int       `json:"total"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventPublisher delivers dataset events. Publish failures are logged by the
// service and never fail the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventPublisherFunc adapts a function to EventPublisher
type EventPublisherFunc func(ctx context.Context, event Event) error

// Publish calls f
func (f EventPublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
