package server

import (
	"encoding/json"
	"net/http"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/model"
)

type registerResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	User    model.User `json:"user"`
}

func decodeInto(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "Invalid JSON body", err)
	}
	return nil
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if err := decodeInto(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user registered", "id", u.ID)
	writeJSON(w, http.StatusCreated, registerResponse{Success: true, Message: "User created successfully", User: u})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req auth.Credentials
	if err := decodeInto(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.User(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
