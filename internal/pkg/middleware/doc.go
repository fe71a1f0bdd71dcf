// Package middleware provides HTTP admission and request-scoping middleware.
//
// Available middleware:
//   - RateLimiter: per-client fixed-window request counting
//   - ConcurrencyGate: bounded number of requests processed at once, held
//     by the request handler around the answer pipeline
//   - RequestID: X-Request-ID propagation
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = rl.Middleware(handler)
//
// Limiter state is process-local: several replicas each enforce the limit
// on their own.
package middleware
