package http

import (
	"net/http"

	"orderlens/internal/dashboard"
	"orderlens/internal/log"
)

// handleDashboard waits for the newest recomputation and returns it.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpAggregate, err)
		return
	}
	OK(dashboardResponse{Snapshot: snap, Stale: snap.Generation != s.session.Generation()}).Write(w)
}

type dashboardResponse struct {
	dashboard.Snapshot
	// Stale is set when a newer change arrived while the response was
	// being prepared.
	Stale bool `json:"stale"`
}
