package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"interaction-dashboard/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func enabledConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         2,
		BlockDuration:     time.Minute,
		WhitelistedIPs:    "10.1.0.0/16,192.0.2.50",
		WhitelistedPaths:  "/health,/metrics*",
	}
}

func TestHTTPMiddleware_Disabled(t *testing.T) {
	m := NewHTTPMiddleware(config.RateLimitConfig{}, newTestLogger())
	defer m.Stop()
	wrapped := m.Middleware(okHandler())

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/interactions", nil)
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestHTTPMiddleware_LimitsAndBlocks(t *testing.T) {
	m := NewHTTPMiddleware(enabledConfig(), newTestLogger())
	defer m.Stop()
	wrapped := m.Middleware(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
		req.RemoteAddr = "198.51.100.1:5000"
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, send().Code)
	ok := send()
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "1", ok.Header().Get("X-RateLimit-Limit"))

	denied := send()
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "60", denied.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(denied.Body.Bytes(), &body))
	assert.Equal(t, "RESOURCE_EXHAUSTED", body["code"])

	assert.True(t, m.Limiter().IsBlocked("198.51.100.1"))
}

func TestHTTPMiddleware_Whitelists(t *testing.T) {
	m := NewHTTPMiddleware(enabledConfig(), newTestLogger())
	defer m.Stop()
	wrapped := m.Middleware(okHandler())

	cases := []struct {
		name   string
		path   string
		remote string
	}{
		{"exact path", "/health", "198.51.100.2:1"},
		{"prefix path", "/metrics/extra", "198.51.100.2:1"},
		{"cidr", "/api/table", "10.1.3.4:1"},
		{"single ip", "/api/table", "192.0.2.50:1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				req := httptest.NewRequest(http.MethodGet, tc.path, nil)
				req.RemoteAddr = tc.remote
				rr := httptest.NewRecorder()
				wrapped.ServeHTTP(rr, req)
				assert.Equal(t, http.StatusOK, rr.Code)
			}
		})
	}
}
