package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graaaaa/nickutc/internal/ingest"
	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// eventsResponse represents the response for the events endpoint.
type eventsResponse struct {
	Events  []presence.Event `json:"events"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// submitResponse is returned for a pushed report.
type submitResponse struct {
	Stored bool            `json:"stored"`
	Event  *presence.Event `json:"event,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// handleUserEvents handles GET /api/v1/users/{id}/events
func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	filter, page, err := parseEventsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	filter.UserID = id

	if _, err := s.users.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}

	result, err := s.events.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}

	resp := eventsResponse{
		Events:  result.Items,
		Total:   result.Total,
		Page:    page,
		PerPage: filter.Limit,
	}

	// Ensure Events is an empty array, not null, for JSON serialization
	if resp.Events == nil {
		resp.Events = []presence.Event{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseEventsFilter parses from, to, page and per_page. The page number is
// returned alongside since the filter only carries the offset.
func parseEventsFilter(r *http.Request) (store.EventFilter, int, error) {
	var filter store.EventFilter
	q := r.URL.Query()

	from, to, err := timeRange(q)
	if err != nil {
		return filter, 0, err
	}
	filter.From, filter.To = from, to

	page, err := intParam(q, "page", 1, 1, 1<<20)
	if err != nil {
		return filter, 0, err
	}
	perPage, err := intParam(q, "per_page", defaultPerPage, 1, maxPerPage)
	if err != nil {
		return filter, 0, err
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	return filter, page, nil
}

// handleSubmitEvent handles POST /api/v1/users/{id}/events. The body is a
// platform report; the user is taken from the path.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var report ingest.Report
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if _, err := s.users.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}

	e, err := s.events.Submit(r.Context(), id, report)
	var pe *ingest.ParseError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{Stored: true, Event: &e})
	case errors.Is(err, ingest.ErrIgnoredStatus):
		writeJSON(w, http.StatusOK, submitResponse{Stored: false, Reason: "status carries no presence signal"})
	case errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, pe.Error(), nil)
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, ingest.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "user not found", nil)
	default:
		writeError(w, http.StatusInternalServerError, "", err)
	}
}
