package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/campusqa/campusqa/internal/pkg/errors"
	"github.com/campusqa/campusqa/internal/pkg/security"
	"github.com/campusqa/campusqa/internal/qa"
)

// maxBodyBytes caps the size of an /api/request body.
const maxBodyBytes = 64 << 10

// handleRequest answers POST /api/request.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var q qa.Query
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid request body"))
		return
	}
	if err := security.ValidateQuery(q.Text); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	var resp *qa.Response
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.qa.Handle(ctx, q)
		return err
	})
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			// The permit wait ended before the orchestrator ran.
			err = apperrors.ProcessingError(fmt.Errorf("waiting for capacity: %w", err))
		}
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

// handleReady reports readiness: the server must not be shutting down and
// the cache must answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "shutting_down"})
		return
	}
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			s.log.WithContext(r.Context()).Warn("Readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "cache_unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
