package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return HTTPMiddleware(m, next) })
	r.Post("/api/request", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/request", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/request", "429")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Errorf("expected in-flight requests to be 0, got %v", got)
	}
}

func TestHTTPMiddleware_Unmatched(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return HTTPMiddleware(m, next) })
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200"},
		{201, "2xx"},
		{302, "3xx"},
		{429, "429"},
		{418, "4xx"},
		{502, "5xx"},
		{999, "999"},
	}

	for _, tt := range tests {
		if got := statusCode(tt.code); got != tt.want {
			t.Errorf("statusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
