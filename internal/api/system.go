package api

import (
	"net/http"
	"time"
)

// handleHealth reports liveness plus a coarse engine summary, so a
// single probe shows whether the instance is actually doing anything.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            s.version,
		"uptimeSeconds":      int64(time.Since(s.startedAt).Seconds()),
		"deviceCount":        stats.TotalDevices,
		"runningDeviceCount": stats.RunningDevices,
	})
}

// handleReady reports readiness. The engine serves everything from
// memory, so the instance is ready as soon as the router is up.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}
