package api

import (
	"net/http"

	"github.com/nomomon/sandbox-api/internal/orchestrator"
)

type executeRequest struct {
	Command    string `json:"command"`
	SessionID  string `json:"session_id"`
	Timeout    int    `json:"timeout"`
	WorkingDir string `json:"working_dir"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if err := validateExecuteRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	if err := s.whitelist.Check(req.Command); err != nil {
		writeAPIError(w, err)
		return
	}

	resp, err := s.sessions.Execute(r.Context(), orchestrator.ExecRequest{
		SessionID:  req.SessionID,
		UserID:     userID(r),
		Command:    req.Command,
		Timeout:    req.Timeout,
		WorkingDir: req.WorkingDir,
	})
	if err != nil {
		s.logger.Error("execute", "session_id", req.SessionID, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
