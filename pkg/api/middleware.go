package api

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders adds standard security headers to all responses.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Response().Header().Set("X-Frame-Options", "DENY")
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			c.Response().Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics. It forwards Flush and Hijack so streaming responses
// and WebSocket upgrades keep working through the wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// instrument logs every request and, when a metrics registry is present,
// records the request duration histogram. The metrics path label is the
// route pattern, not the raw path, to keep label cardinality bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		logAttrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		switch {
		case wrapped.statusCode >= 500:
			slog.Error("HTTP request failed", logAttrs...)
		case wrapped.statusCode >= 400:
			slog.Warn("HTTP request rejected", logAttrs...)
		default:
			slog.Info("HTTP request", logAttrs...)
		}

		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(r.Method, routePattern(r.URL.Path), wrapped.statusCode, duration)
		}
	})
}

// recoverPanics converts handler panics into 500 responses so a single bad
// request cannot take the process down.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic in HTTP handler",
					"method", r.Method, "path", r.URL.Path, "panic", rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern collapses path parameters to their route placeholders so
// every request to the same route shares one metrics label value.
func routePattern(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 {
		return path
	}
	switch segs[0] {
	case "sessions", "collections", "alerts":
		segs[1] = ":id"
	case "export":
		segs[1] = ":report_id"
	case "scenarios":
		switch segs[1] {
		case "templates", "generate", "import":
		default:
			segs[1] = ":id"
		}
	default:
		return path
	}
	return "/" + strings.Join(segs, "/")
}

// parseIntParam reads an integer query parameter, falling back to def when
// absent and rejecting garbage with false.
func parseIntParam(c *echo.Context, name string, def int) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
