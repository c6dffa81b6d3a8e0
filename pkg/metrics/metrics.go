package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Import metrics
	ImportsTotal        *prometheus.CounterVec
	RowsTotal           *prometheus.CounterVec
	FieldFallbacksTotal *prometheus.CounterVec
	RecordsStored       prometheus.Gauge
	OperationDuration   *prometheus.HistogramVec

	// API metrics
	RateLimitedTotal *prometheus.CounterVec
	WebSocketClients prometheus.Gauge

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()

		ImportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_imports_total",
				Help: "Total number of CSV imports by outcome",
			},
			[]string{"status"},
		)

		RowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_rows_total",
				Help: "Total number of uploaded rows, stored or dropped",
			},
			[]string{"outcome"},
		)

		FieldFallbacksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_field_fallbacks_total",
				Help: "Number of field values replaced by a default during normalization",
			},
			[]string{"field"},
		)

		RecordsStored = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_records_stored",
				Help: "Number of interaction records currently held",
			},
		)

		OperationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_operation_duration_seconds",
				Help:    "Duration of dashboard operations",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"operation"},
		)

		RateLimitedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		)

		WebSocketClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_ws_clients",
				Help: "Connected websocket event clients",
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_amqp_published_messages_total",
				Help: "Total number of dataset events published to AMQP",
			},
			[]string{"routing_key", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_amqp_connection_status",
				Help: "AMQP connection status (1=connected, 0=disconnected)",
			},
		)

		reg.MustRegister(
			ImportsTotal,
			RowsTotal,
			FieldFallbacksTotal,
			RecordsStored,
			OperationDuration,
			RateLimitedTotal,
			WebSocketClients,
			AMQPPublishedMessages,
			AMQPConnectionStatus,

			// Process and runtime
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		registry = reg
		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry, nil before Init
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

func active() bool {
	return metricsEnabled && registry != nil
}

// Handler returns the metrics HTTP handler
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if active() {
		mux.Handle(defaultMetricsPath, Handler())
	}
}

// RecordImport records the outcome of a CSV import
func RecordImport(status string, stored, dropped int) {
	if !active() {
		return
	}
	ImportsTotal.WithLabelValues(status).Inc()
	RowsTotal.WithLabelValues("stored").Add(float64(stored))
	RowsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordFieldFallback counts a field value replaced by its default
func RecordFieldFallback(field string) {
	if active() {
		FieldFallbacksTotal.WithLabelValues(field).Inc()
	}
}

// SetRecordsStored sets the current record count
func SetRecordsStored(n int) {
	if active() {
		RecordsStored.Set(float64(n))
	}
}

// ObserveOperation starts a timer for an operation; call the returned func when done
func ObserveOperation(operation string) func() {
	if !active() {
		return func() {}
	}

	start := time.Now()
	return func() {
		OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordRateLimited counts a request rejected by the rate limiter
func RecordRateLimited(path string) {
	if active() {
		RateLimitedTotal.WithLabelValues(path).Inc()
	}
}

// SetWebSocketClients sets the number of connected event clients
func SetWebSocketClients(n int) {
	if active() {
		WebSocketClients.Set(float64(n))
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(routingKey, status string) {
	if active() {
		AMQPPublishedMessages.WithLabelValues(routingKey, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if !active() {
		return
	}
	if connected {
		AMQPConnectionStatus.Set(1)
	} else {
		AMQPConnectionStatus.Set(0)
	}
}
