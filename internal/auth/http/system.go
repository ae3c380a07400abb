package http

import (
	"net/http"
	"time"

	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/httpx"
	"github.com/pastvault/pastvault/pkg/slogx"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	Store        store.Store
	BuildVersion string
	StartTime    time.Time
}

// HandleLivez handles GET /livez: process is up.
func (h *SystemHandler) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.BuildVersion,
		"uptime":  time.Since(h.StartTime).Round(time.Second).String(),
	})
}

// HandleReadyz handles GET /readyz: process is up and the database answers.
func (h *SystemHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		slogx.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.BuildVersion,
	})
}
