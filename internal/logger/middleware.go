package logger

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/svtfetch/backend/internal/errors"
)

// statusRecorder remembers the status a handler sent
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
		s.ResponseWriter.WriteHeader(code)
	}
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// pollPaths are hit every few seconds by every open client and are only
// logged at debug level.
var pollPaths = map[string]bool{
	"/api/downloads":       true,
	"/api/downloads/files": true,
}

// LoggingMiddleware writes one entry per request. Health and metrics
// scrapes are not logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		log := Default().WithComponent("http")
		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"bytes":       rec.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_ip":   clientIP(r),
		}
		if q := sanitizeQuery(log.redactor, r.URL.RawQuery); q != "" {
			fields["query"] = q
		}

		ctx := r.Context()
		switch {
		case rec.status >= http.StatusBadRequest:
			log.Warn(ctx, "request completed with error", fields)
		case pollPaths[r.URL.Path]:
			log.Debug(ctx, "request completed", fields)
		default:
			log.Info(ctx, "request completed", fields)
		}
	})
}

// sanitizeQuery masks the values of sensitive query parameters, leaving
// the rest of the raw query untouched
func sanitizeQuery(red *Redactor, query string) string {
	if query == "" {
		return ""
	}
	parts := strings.Split(query, "&")
	for i, part := range parts {
		if key, _, ok := strings.Cut(part, "="); ok && red.sensitive(key) {
			parts[i] = key + "=" + redacted
		}
	}
	return strings.Join(parts, "&")
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RecoveryMiddleware turns a handler panic into a logged 500
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}

			Default().WithComponent("recovery").Error(r.Context(), "panic recovered", fmt.Errorf("panic: %v", rec), map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.InternalError("an unexpected error occurred"))
		}()

		next.ServeHTTP(w, r)
	})
}
