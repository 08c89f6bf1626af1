package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/notify"
	"github.com/DanArmor/melatonin-bot/telemetry"
)

type statusResponse struct {
	Counts    *db.Counts          `json:"counts,omitempty"`
	LastCycle *notify.CycleReport `json:"last_cycle,omitempty"`
	Stalled   bool                `json:"stalled"`
}

// HandleStatus returns table counts and the most recent poll cycle.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp statusResponse
	if h.deps.Stats != nil {
		c, err := h.deps.Stats.Counts(r.Context())
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Warn("status counts failed", slog.Any("err", err), slog.String("component", "http"))
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		resp.Counts = &c
	}
	if h.deps.Cycles != nil {
		if last, ok := h.deps.Cycles.LastCycle(); ok {
			resp.LastCycle = &last
			resp.Stalled = h.deps.Now().Sub(last.StartedAt) > h.stallAfter()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
