package correlation

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Middleware attaches a correlation id to every request and logs its outcome
type Middleware struct {
	logger      *logrus.Logger
	logRequests bool
}

// NewMiddleware creates the middleware. With logRequests set every completed
// request is logged, at a level chosen by its status.
func NewMiddleware(logger *logrus.Logger, logRequests bool) *Middleware {
	return &Middleware{logger: logger, logRequests: logRequests}
}

// Handler wraps next
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &RequestInfo{
			CorrelationID: extractCorrelationID(r),
			StartTime:     time.Now(),
			ClientIP:      ClientIP(r),
			Method:        r.Method,
			Path:          r.URL.Path,
		}
		if info.CorrelationID.IsEmpty() {
			info.CorrelationID = New()
		}

		r = r.WithContext(info.ToContext(r.Context()))
		w.Header().Set(HTTPHeader, info.CorrelationID.String())

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if !m.logRequests || m.logger == nil {
			return
		}

		fields := logrus.Fields{
			"correlation_id": info.CorrelationID.String(),
			"method":         info.Method,
			"path":           info.Path,
			"status":         wrapper.statusCode,
			"duration_ms":    info.Duration().Milliseconds(),
			"client_ip":      info.ClientIP,
		}
		switch {
		case wrapper.statusCode >= 500:
			m.logger.WithFields(fields).Error("HTTP request completed with server error")
		case wrapper.statusCode >= 400:
			m.logger.WithFields(fields).Warn("HTTP request completed with client error")
		default:
			m.logger.WithFields(fields).Debug("HTTP request completed")
		}
	})
}

func extractCorrelationID(r *http.Request) ID {
	if id := r.Header.Get(HTTPHeader); id != "" {
		return ID(id)
	}
	return ID(r.Header.Get(HTTPRequestIDHeader))
}

// ClientIP returns the originating address of r, honouring X-Forwarded-For
// and X-Real-IP when they hold a valid IP
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets websocket upgrades pass through the wrapper
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.written = true
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
