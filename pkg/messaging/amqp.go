// Package messaging publishes dataset change events to an AMQP broker so that
// other systems can refresh what they derived from the dashboard data.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"interaction-dashboard/pkg/config"
	"interaction-dashboard/pkg/metrics"
)

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL            string
	QueueName      string
	ExchangeName   string
	RoutingKey     string
	PublishTimeout time.Duration
}

// NewAMQPConfig converts the messaging settings
func NewAMQPConfig(cfg config.MessagingConfig) AMQPConfig {
	return AMQPConfig{
		URL:            cfg.AMQPUrl,
		QueueName:      cfg.QueueName,
		ExchangeName:   cfg.Exchange,
		RoutingKey:     cfg.RoutingKey,
		PublishTimeout: cfg.PublishTimeout,
	}
}

// publishChannel is the part of *amqp.Channel the client publishes through
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPClient handles the broker connection and message publishing
type AMQPClient struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   publishChannel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a client. It does not connect.
func NewAMQPClient(logger *logrus.Logger, cfg AMQPConfig) *AMQPClient {
	if cfg.ExchangeName == "" {
		// the default exchange routes by queue name
		cfg.RoutingKey = cfg.QueueName
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.QueueName
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	return &AMQPClient{
		logger:   logger,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// RoutingKey returns the key events are published with
func (c *AMQPClient) RoutingKey() string {
	return c.config.RoutingKey
}

// Connect dials the broker, declares the event queue and, when an exchange
// is configured, binds the queue to it
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		c.logger.Warn("AMQP_URL or AMQP_QUEUE_NAME not set, AMQP functionality will be disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	conn, err := dialWithTimeout(c.config.URL, 5*time.Second)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := declareTopology(channel, c.config); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithFields(logrus.Fields{
		"queue":    c.config.QueueName,
		"exchange": c.config.ExchangeName,
	}).Info("Connected to AMQP server")

	c.stopChan = make(chan struct{})
	go c.monitorConnection(conn, c.stopChan)

	return nil
}

func dialWithTimeout(url string, timeout time.Duration) (*amqp.Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	results := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.Dial(url)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case results <- dialResult{conn, err}:
		}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to AMQP server: %w", res.err)
		}
		return res.conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("connection to AMQP server timed out after %s", timeout)
	}
}

func declareTopology(channel *amqp.Channel, cfg AMQPConfig) error {
	if _, err := channel.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	if cfg.ExchangeName == "" {
		return nil
	}

	if err := channel.ExchangeDeclare(cfg.ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare AMQP exchange: %w", err)
	}
	if err := channel.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind AMQP queue: %w", err)
	}
	return nil
}

// Disconnect closes the AMQP connection and stops reconnect attempts
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// Publish sends a persistent JSON message. It gives up when ctx ends or the
// publish timeout elapses, whichever is first.
func (c *AMQPClient) Publish(ctx context.Context, messageType string, body []byte) error {
	c.connMutex.RLock()
	channel := c.channel
	connected := c.connected
	c.connMutex.RUnlock()

	if !connected || channel == nil {
		return fmt.Errorf("not connected to AMQP server")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- channel.Publish(
			c.config.ExchangeName,
			c.config.RoutingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				Type:         messageType,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to publish to AMQP: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing to AMQP aborted: %w", ctx.Err())
	}
}

// monitorConnection reconnects with exponential backoff when the broker
// closes the connection
func (c *AMQPClient) monitorConnection(conn *amqp.Connection, stop chan struct{}) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case closeErr := <-closeChan:
		if closeErr == nil {
			// closed by Disconnect
			return
		}
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")
	}

	for attempt := 1; attempt <= 10; attempt++ {
		err := c.Connect()
		if err == nil {
			c.logger.WithField("attempt", attempt).Info("Successfully reconnected to AMQP server")
			return
		}
		c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
	}

	c.logger.Error("Giving up reconnecting to AMQP server")
}
