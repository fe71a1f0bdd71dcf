package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPMiddleware wraps an HTTP handler to collect metrics.
// It records request count and duration labelled by the matched chi route,
// and tracks in-flight requests.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(func(next http.Handler) http.Handler { return metrics.HTTPMiddleware(m, next) })
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.InFlight.Inc()
		defer m.InFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		route := routePattern(r)
		m.HTTPRequests.WithLabelValues(r.Method, route, statusCode(wrapped.statusCode)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// routePattern returns the matched chi route to keep label cardinality
// bounded. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusCode groups uncommon codes by class.
func statusCode(code int) string {
	switch code {
	case 200, 400, 404, 405, 429, 500, 503, 504:
		return strconv.Itoa(code)
	}

	switch {
	case code >= 100 && code < 600:
		return strconv.Itoa(code/100) + "xx"
	default:
		return strconv.Itoa(code)
	}
}
