package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"interaction-dashboard/pkg/config"
	"interaction-dashboard/pkg/correlation"
	"interaction-dashboard/pkg/errors"
	"interaction-dashboard/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware provides rate limiting for HTTP requests
type HTTPMiddleware struct {
	limiter          *Limiter
	config           config.RateLimitConfig
	logger           *logrus.Logger
	whitelistedIPs   map[string]bool
	whitelistedNets  []*net.IPNet
	whitelistedPaths []string
}

// NewHTTPMiddleware creates a new HTTP rate limiting middleware
func NewHTTPMiddleware(cfg config.RateLimitConfig, logger *logrus.Logger) *HTTPMiddleware {
	m := &HTTPMiddleware{
		limiter:          NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize, logger),
		config:           cfg,
		logger:           logger,
		whitelistedIPs:   make(map[string]bool),
		whitelistedPaths: config.SplitList(cfg.WhitelistedPaths),
	}

	for _, ip := range config.SplitList(cfg.WhitelistedIPs) {
		if !strings.Contains(ip, "/") {
			m.whitelistedIPs[ip] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(ip)
		if err != nil {
			logger.WithError(err).Warnf("Invalid CIDR in whitelist: %s", ip)
			continue
		}
		m.whitelistedNets = append(m.whitelistedNets, ipNet)
	}

	return m
}

// Middleware applies rate limiting; it is a pass-through when disabled
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	m.logger.WithFields(logrus.Fields{
		"rps":               m.config.RequestsPerSecond,
		"burst":             m.config.BurstSize,
		"whitelisted_ips":   len(m.whitelistedIPs) + len(m.whitelistedNets),
		"whitelisted_paths": len(m.whitelistedPaths),
	}).Info("HTTP rate limiting middleware initialized")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := correlation.ClientIP(r)
		path := r.URL.Path

		if m.isPathWhitelisted(path) || m.isIPWhitelisted(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		limit := strconv.FormatFloat(m.config.RequestsPerSecond, 'f', -1, 64)
		if !m.limiter.Allow(clientIP) {
			correlation.LoggerFromContext(r.Context(), m.logger).WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      path,
			}).Warn("Rate limit exceeded")
			metrics.RecordRateLimited(path)

			m.limiter.Block(clientIP, m.config.BlockDuration)

			w.Header().Set("Retry-After", strconv.Itoa(int(m.config.BlockDuration/time.Second)))
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", "0")
			errors.WriteError(w, errors.Wrap(errors.ErrResourceExhausted, "rate limit exceeded, retry later").
				WithCode(errors.CodeResourceExhausted))
			return
		}

		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(m.limiter.Remaining(clientIP))))

		next.ServeHTTP(w, r)
	})
}

func (m *HTTPMiddleware) isIPWhitelisted(ip string) bool {
	if m.whitelistedIPs[ip] {
		return true
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	for _, ipNet := range m.whitelistedNets {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	return false
}

// isPathWhitelisted matches exact paths and prefixes written as "/path*"
func (m *HTTPMiddleware) isPathWhitelisted(path string) bool {
	for _, p := range m.whitelistedPaths {
		if p == path {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Limiter returns the underlying limiter
func (m *HTTPMiddleware) Limiter() *Limiter {
	return m.limiter
}

// Stop releases the limiter's background sweeper
func (m *HTTPMiddleware) Stop() {
	m.limiter.Stop()
}
