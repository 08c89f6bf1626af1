package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks the database and that the poll loop is still cycling.
// Before the first cycle completes the loop is considered ready.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.deps.DB.PingContext(r.Context()) }},
		{"poll_loop", func() error {
			if h.deps.Cycles == nil {
				return nil
			}
			last, ok := h.deps.Cycles.LastCycle()
			if !ok {
				return nil
			}
			if age := h.deps.Now().Sub(last.StartedAt); age > h.stallAfter() {
				return fmt.Errorf("last cycle started %s ago", age.Round(time.Second))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
