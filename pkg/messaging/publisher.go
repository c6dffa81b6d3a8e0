package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"interaction-dashboard/pkg/circuitbreaker"
	"interaction-dashboard/pkg/dashboard"
	"interaction-dashboard/pkg/metrics"
)

// Publisher is the subset of AMQPClient the dataset publisher needs
type Publisher interface {
	Publish(ctx context.Context, messageType string, body []byte) error
	RoutingKey() string
}

// DatasetPublisher forwards dashboard dataset events to AMQP
type DatasetPublisher struct {
	client  Publisher
	logger  *logrus.Logger
	breaker *circuitbreaker.CircuitBreaker
}

// NewDatasetPublisher creates a dataset event publisher over client
func NewDatasetPublisher(client Publisher, logger *logrus.Logger) *DatasetPublisher {
	return &DatasetPublisher{client: client, logger: logger}
}

// SetCircuitBreaker guards publishing with cb. While the circuit is open
// events are dropped without touching the broker.
func (p *DatasetPublisher) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	p.breaker = cb
}

// Publish implements dashboard.EventPublisher
func (p *DatasetPublisher) Publish(ctx context.Context, event dashboard.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset event: %w", err)
	}

	key := p.client.RoutingKey()
	publish := func(ctx context.Context) error {
		return p.client.Publish(ctx, event.Type, body)
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, publish)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		if circuitbreaker.IsOpenError(err) {
			metrics.RecordAMQPPublish(key, "rejected")
		} else {
			metrics.RecordAMQPPublish(key, "error")
		}
		return err
	}

	metrics.RecordAMQPPublish(key, "success")
	p.logger.WithFields(logrus.Fields{
		"event":          event.Type,
		"routing_key":    key,
		"correlation_id": event.CorrelationID,
	}).Debug("Published dataset event to AMQP")
	return nil
}
