package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/graaaaa/nickutc/internal/app"
)

const maxConfigBody = 1 << 20

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.GetConfig(r.Context()))
}

// handlePutConfig applies a partial config update. Unknown fields are
// rejected so a typo never silently does nothing.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody))
	dec.DisallowUnknownFields()

	var req app.ConfigUpdateRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	result, err := s.cfg.UpdateConfig(r.Context(), req)
	var ve *app.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error(), nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}

	s.logger.Info("config updated",
		"request_id", r.Header.Get(requestIDHeader),
		"restart_required", result.RestartRequired,
	)
	writeJSON(w, http.StatusOK, result)
}
