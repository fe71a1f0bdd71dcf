package middleware

import (
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/campusqa/campusqa/internal/pkg/errors"
)

// RateLimitMetrics records rejected requests.
type RateLimitMetrics interface {
	RecordRateLimited()
}

// window is one client's counter for the current fixed window.
type window struct {
	start time.Time
	count int
}

// RateLimiter provides per-client fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	window  time.Duration
	cleanup time.Duration
	now     func() time.Time
	metrics RateLimitMetrics

	trustProxyHeaders bool

	stop     chan struct{}
	stopOnce sync.Once
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Requests is the number of requests allowed per window per client.
	Requests int
	// Window is the length of a counting window.
	Window time.Duration
	// CleanupInterval is how often to purge expired client windows.
	CleanupInterval time.Duration
	// TrustProxyHeaders keys clients by X-Forwarded-For or X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Requests:        60,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	}
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	rl := &RateLimiter{
		clients: make(map[string]*window),
		limit:   cfg.Requests,
		window:  cfg.Window,
		cleanup: cfg.CleanupInterval,
		now:     time.Now,
		stop:    make(chan struct{}),

		trustProxyHeaders: cfg.TrustProxyHeaders,
	}

	go rl.cleanupLoop()

	return rl
}

// SetClock replaces the time source. Intended for tests.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
}

// SetMetrics sets the metrics recorder.
func (rl *RateLimiter) SetMetrics(m RateLimitMetrics) {
	rl.metrics = m
}

// Allow records a request from client and reports whether it is within the
// limit. When it is not, retryAfter is the time until the window resets.
func (rl *RateLimiter) Allow(client string) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.clients[client]
	if !exists || now.Sub(w.start) >= rl.window {
		rl.clients[client] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, w.start.Add(rl.window).Sub(now)
	}
	w.count++
	return true, 0
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Purge drops windows that have already expired.
func (rl *RateLimiter) Purge() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client, w := range rl.clients {
		if now.Sub(w.start) >= rl.window {
			delete(rl.clients, client)
		}
	}
}

// cleanupLoop removes stale client entries.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Purge()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware returns an HTTP middleware that applies rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := rl.Allow(getClientIP(r, rl.trustProxyHeaders))
		if !ok {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited()
			}
			seconds := int(math.Ceil(retryAfter.Seconds()))
			apperrors.WriteError(w, apperrors.RateLimitedError(max(1, seconds)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request. Proxy headers are
// consulted only when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Take the first IP in the chain
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
