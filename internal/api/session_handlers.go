package api

import (
	"errors"
	"io"
	"net/http"
)

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// An empty body is fine: the server generates an id.
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if req.SessionID != "" {
		if err := ValidateSessionID(req.SessionID); err != nil {
			writeValidationError(w, err.Error(), nil)
			return
		}
	}

	sess, err := s.sessions.CreateSession(r.Context(), req.SessionID, userID(r))
	if err != nil {
		s.logger.Error("create session", "session_id", req.SessionID, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	if err := s.sessions.Delete(r.Context(), id, userID(r)); err != nil {
		s.logger.Error("delete session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "deleted",
		"session_id": id,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	entries, err := s.sessions.History(r.Context(), id, userID(r), limit)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
