package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the X-Request-ID header, generating one when absent,
// and stores it in the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := logger.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
