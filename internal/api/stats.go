package api

import (
	"net/http"

	"github.com/graaaaa/nickutc/internal/app"
)

// handleUserStats handles GET /api/v1/users/{id}/stats
func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	days, err := intParam(r.URL.Query(), "days", app.DefaultStatsDays, 1, app.MaxStatsDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := s.stats.UserStats(r.Context(), id, days)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
