package api

import (
	"net/http"

	"github.com/graaaaa/nickutc/internal/presence"
)

type sleepPeriodsResponse struct {
	UserID       int64                  `json:"user_id"`
	SleepPeriods []presence.SleepPeriod `json:"sleep_periods"`
}

type timezoneHistoryResponse struct {
	UserID  int64                    `json:"user_id"`
	History []presence.DailyTimezone `json:"history"`
}

type recomputeResponse struct {
	UserID int64 `json:"user_id"`
	Queued bool  `json:"queued"`
}

// handleSleepPeriods handles GET /api/v1/users/{id}/sleep-periods
func (s *Server) handleSleepPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	dr, err := dateRange(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	periods, err := s.sleep.Periods(r.Context(), id, dr)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sleepPeriodsResponse{UserID: id, SleepPeriods: periods})
}

// handleTimezoneHistory handles GET /api/v1/users/{id}/timezone-history
func (s *Server) handleTimezoneHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	dr, err := dateRange(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	days, err := s.sleep.History(r.Context(), id, dr)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timezoneHistoryResponse{UserID: id, History: days})
}

// handleRecompute handles POST /api/v1/users/{id}/recompute. A recompute
// that is already pending is not queued twice; the response still is 202.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	queued, err := s.sleep.Recompute(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, recomputeResponse{UserID: id, Queued: queued})
}
