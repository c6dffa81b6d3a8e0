package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"interaction-dashboard/pkg/config"
	"interaction-dashboard/pkg/dashboard"
	"interaction-dashboard/pkg/metrics"
	"interaction-dashboard/pkg/query"
	"interaction-dashboard/pkg/util"
	"interaction-dashboard/pkg/version"

	"github.com/sirupsen/logrus"
)

// RateLimitMiddleware interface for rate limiting
type RateLimitMiddleware interface {
	Middleware(next http.Handler) http.Handler
}

// CorrelationMiddleware interface for request correlation
type CorrelationMiddleware interface {
	Handler(next http.Handler) http.Handler
}

// ConnectionChecker reports whether a broker connection is up
type ConnectionChecker interface {
	IsConnected() bool
}

// Options holds the request defaults of the API
type Options struct {
	// Table page size when the request names none
	DefaultPageSize int

	// Upload body cap; zero or less disables the cap
	MaxUploadBytes int64

	// Location of date-only filter bounds
	Location *time.Location
}

// Server serves the dashboard API, the event stream and the ops endpoints
type Server struct {
	config                config.HTTPConfig
	options               Options
	logger                *logrus.Logger
	httpServer            *http.Server
	mux                   *http.ServeMux
	handler               http.Handler
	recovery              *util.PanicHandler
	service               *dashboard.Service
	startTime             time.Time
	eventHub              *EventHub
	amqpClient            ConnectionChecker
	rateLimitMiddleware   RateLimitMiddleware
	correlationMiddleware CorrelationMiddleware
}

// NewServer creates a new HTTP server instance and registers every route
func NewServer(logger *logrus.Logger, cfg config.HTTPConfig, service *dashboard.Service, opts Options) *Server {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = query.DefaultPageSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	server := &Server{
		config:    cfg,
		options:   opts,
		logger:    logger,
		service:   service,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
		recovery:  util.NewPanicHandler(logger),
	}

	server.mux.HandleFunc("/health", addServerHeader(server.HealthHandler))
	server.mux.HandleFunc("/health/live", addServerHeader(server.LivenessHandler))
	server.mux.HandleFunc("/health/ready", addServerHeader(server.ReadinessHandler))
	server.mux.HandleFunc("/status", addServerHeader(server.statusHandler))

	if cfg.EnableMetrics && metrics.GetRegistry() != nil {
		promHandler := metrics.Handler()
		server.mux.HandleFunc("/metrics", addServerHeader(promHandler.ServeHTTP))
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	NewAPIHandler(logger, service, opts).RegisterHandlers(server)

	server.buildChain()
	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.handler.ServeHTTP(w, r)
	})

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      rootHandler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// addServerHeader wraps a handler so that it reports the server version
func addServerHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next(w, r)
	}
}

// buildChain composes correlation (outermost), rate limiting, panic
// recovery and the mux
func (s *Server) buildChain() {
	handler := s.recovery.Middleware(s.mux)
	if s.rateLimitMiddleware != nil {
		handler = s.rateLimitMiddleware.Middleware(handler)
	}
	if s.correlationMiddleware != nil {
		handler = s.correlationMiddleware.Handler(handler)
	}
	s.handler = handler
}

// Handler returns the root handler with every middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetRateLimitMiddleware sets the rate limiting middleware. Call before Start.
func (s *Server) SetRateLimitMiddleware(middleware RateLimitMiddleware) {
	s.rateLimitMiddleware = middleware
	s.buildChain()
	s.logger.Info("Rate limiting middleware configured")
}

// SetCorrelationMiddleware sets the correlation ID middleware. Call before Start.
func (s *Server) SetCorrelationMiddleware(middleware CorrelationMiddleware) {
	s.correlationMiddleware = middleware
	s.buildChain()
	s.logger.Info("Correlation ID middleware configured")
}

// RegisterHandler adds a handler to the server
func (s *Server) RegisterHandler(path string, handler http.HandlerFunc) {
	s.mux.HandleFunc(path, addServerHeader(handler))
	s.logger.WithField("path", path).Debug("Registered HTTP handler")
}

// SetEventHub registers the dataset event stream at /ws/events
func (s *Server) SetEventHub(hub *EventHub) {
	s.eventHub = hub
	s.mux.HandleFunc("/ws/events", hub.ServeWs)
	s.logger.Info("Dataset event WebSocket endpoint registered at /ws/events")
}

// SetAMQPClient sets the AMQP client reference for health checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	s.recovery.SafeGo("http-server", func() {
		if s.config.TLSEnabled {
			if s.config.TLSCertFile == "" || s.config.TLSKeyFile == "" {
				s.logger.Error("TLS is enabled but certificate or key path is missing; refusing to start HTTP server")
				return
			}

			s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}

			if err := s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile); err != nil && err != http.ErrServerClosed {
				s.logger.WithError(err).Error("HTTP TLS server failed")
			}
			return
		}

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	})
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// statusHandler handles the /status endpoint
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.WithField("endpoint", "/status").Debug("Status endpoint accessed")

	status := map[string]interface{}{
		"status":     "ok",
		"name":       version.Name,
		"version":    version.Version,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"started_at": s.startTime.Format(time.RFC3339),
		"uploads":    len(s.service.Uploads()),
	}

	if count, err := s.service.Count(r.Context()); err == nil {
		status["records"] = count
	}
	if s.eventHub != nil {
		status["websocket_clients"] = s.eventHub.ClientCount()
	}
	if s.amqpClient != nil {
		status["amqp_connected"] = s.amqpClient.IsConnected()
	}

	writeJSON(w, http.StatusOK, status)
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

