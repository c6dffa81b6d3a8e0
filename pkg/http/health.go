package http

import (
	"net/http"
	"runtime"
	"time"

	"interaction-dashboard/pkg/version"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines       int    `json:"goroutines"`
	MemoryMB         uint64 `json:"memory_mb"`
	CPUCount         int    `json:"cpu_count"`
	Records          int    `json:"records"`
	WebSocketClients int    `json:"websocket_clients"`
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler handles health check requests. The store decides between
// healthy and unhealthy; optional components only degrade the status.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	health := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	count, err := s.service.Count(r.Context())
	if err != nil {
		health.Checks["store"] = CheckResult{Status: statusUnhealthy, Message: err.Error()}
		health.Status = statusUnhealthy
	} else {
		health.Checks["store"] = CheckResult{Status: statusHealthy, Message: "Record store operational"}
		health.System.Records = count
	}

	if s.eventHub != nil {
		if s.eventHub.IsRunning() {
			health.Checks["websocket"] = CheckResult{Status: statusHealthy, Message: "WebSocket hub is running"}
			health.System.WebSocketClients = s.eventHub.ClientCount()
		} else {
			health.Checks["websocket"] = CheckResult{Status: statusDegraded, Message: "WebSocket hub not running"}
			health.degrade()
		}
	}

	if s.amqpClient != nil {
		if s.amqpClient.IsConnected() {
			health.Checks["amqp"] = CheckResult{Status: statusHealthy, Message: "AMQP connected"}
		} else {
			health.Checks["amqp"] = CheckResult{Status: statusDegraded, Message: "AMQP disconnected"}
			health.degrade()
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"system":   health.System,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

func (h *HealthStatus) degrade() {
	if h.Status == statusHealthy {
		h.Status = statusDegraded
	}
}

// LivenessHandler handles kubernetes liveness probe
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler handles kubernetes readiness probe. Only the record store
// gates readiness.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Count(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
