package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// readyz pings the storage backend with a short timeout.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := s.store.Ready(ctx); err != nil {
		s.log.Warn("readiness check failed", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /dictionary/chart returns the built-in chart of accounts.
func (s *Server) defaultChart(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, dictionary.Default())
}
