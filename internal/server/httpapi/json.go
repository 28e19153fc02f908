package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/asavelyev/mediahub/internal/apperr"
)

// envelope is the wire shape of every response, success or failure.
type envelope struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(envelope{
		Status:  status,
		Data:    data,
		Message: message,
		Success: status < http.StatusBadRequest,
	}); err != nil {
		s.logger.Error(context.Background(), err.Error())
	}
}

// writeError maps a service error to the envelope. The message comes from
// apperr so untyped internals never leak outward.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err.Error(), "path", r.URL.Path)
	}
	s.writeData(w, status, nil, apperr.MessageOf(err))
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	return nil
}
