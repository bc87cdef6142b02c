package api

import (
	"net/http"
)

// handleStats reports live sessions, save counters and pass timings.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.sessions.Len(),
		"saves":    s.sessions.SaveStats(),
		"timings":  s.stats.Snapshot(),
	})
}
