package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Makepad-fr/tada/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto a status. Anything that is not an *apperr.Error
// is logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal && ae.Kind != apperr.KindTransient {
		if ae.Cause != nil {
			s.logger.Debug("request rejected", "path", r.URL.Path, "err", ae.Cause)
		}
		writeJSON(w, ae.HTTPStatus(), errorResponse{Error: ae.Message})
		return
	}
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}
