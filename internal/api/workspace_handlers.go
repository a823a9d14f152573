package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nomomon/sandbox-api/internal/workspace"
)

// resolveWorkspace runs the shared front half of every workspace handler:
// validate the session id, sanitize the client path, then attach to the
// session's container. Returns ok=false after writing the error response.
func (s *Server) resolveWorkspace(w http.ResponseWriter, r *http.Request, requirePath bool) (containerID, rel string, ok bool) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return "", "", false
	}

	path := r.URL.Query().Get("path")
	if requirePath && path == "" {
		writeValidationError(w, "path query parameter is required", nil)
		return "", "", false
	}
	rel, err := workspace.ResolvePath(path)
	if err != nil {
		writeAPIError(w, err)
		return "", "", false
	}

	containerID, err = s.sessions.Attach(r.Context(), id, userID(r))
	if err != nil {
		s.logger.Error("attach session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return "", "", false
	}
	return containerID, rel, true
}

func (s *Server) handleWorkspaceList(w http.ResponseWriter, r *http.Request) {
	containerID, rel, ok := s.resolveWorkspace(w, r, false)
	if !ok {
		return
	}

	entries, err := s.files.List(r.Context(), containerID, rel)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleWorkspaceRead(w http.ResponseWriter, r *http.Request) {
	containerID, rel, ok := s.resolveWorkspace(w, r, true)
	if !ok {
		return
	}

	content, err := s.files.Read(r.Context(), containerID, rel)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}

type writeContentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleWorkspaceWrite(w http.ResponseWriter, r *http.Request) {
	containerID, rel, ok := s.resolveWorkspace(w, r, true)
	if !ok {
		return
	}

	content, ok := s.readWriteBody(w, r)
	if !ok {
		return
	}

	if err := s.files.Write(r.Context(), containerID, rel, content); err != nil {
		writeAPIError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readWriteBody accepts either raw bytes or a JSON {"content": "..."} wrapper,
// keyed off the Content-Type header.
func (s *Server) readWriteBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	maxSize := s.cfg.Workspace.MaxFileSizeBytes

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		// Escaping can inflate the wire form of a legal payload up to 6x,
		// so the JSON bound is looser than the content bound.
		var req writeContentRequest
		body := http.MaxBytesReader(w, r.Body, maxSize*6+4096)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			if tooLarge(w, err, maxSize) {
				return nil, false
			}
			writeValidationError(w, "invalid json: "+err.Error(), nil)
			return nil, false
		}
		return []byte(req.Content), true
	}

	// One byte of slack so a body at exactly the limit is diagnosed by the
	// size check rather than a read error.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSize+1))
	if err != nil {
		if tooLarge(w, err, maxSize) {
			return nil, false
		}
		writeValidationError(w, "read body: "+err.Error(), nil)
		return nil, false
	}
	return body, true
}

func tooLarge(w http.ResponseWriter, err error, maxSize int64) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	writeAPIError(w, fmt.Errorf("%w (%d bytes)", workspace.ErrTooLarge, maxSize))
	return true
}

func (s *Server) handleWorkspaceUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	// Bound the whole multipart body; the form framing rides in the slack.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Workspace.MaxFileSizeBytes+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		if tooLarge(w, err, s.cfg.Workspace.MaxFileSizeBytes) {
			return
		}
		writeValidationError(w, "multipart field 'file' is required: "+err.Error(), nil)
		return
	}
	defer file.Close()

	target := strings.TrimSpace(r.URL.Query().Get("path"))
	if target == "" {
		target = sanitizeUploadFilename(header.Filename)
	}
	rel, err := workspace.ResolvePath(target)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	containerID, err := s.sessions.Attach(r.Context(), id, userID(r))
	if err != nil {
		s.logger.Error("attach session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeValidationError(w, "read upload: "+err.Error(), nil)
		return
	}

	if err := s.files.Write(r.Context(), containerID, rel, content); err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"path":       rel,
		"session_id": id,
		"size":       len(content),
	})
}

func (s *Server) handleWorkspaceDelete(w http.ResponseWriter, r *http.Request) {
	containerID, rel, ok := s.resolveWorkspace(w, r, true)
	if !ok {
		return
	}

	if err := s.files.Delete(r.Context(), containerID, rel); err != nil {
		writeAPIError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
