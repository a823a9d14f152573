package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/config"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
)

func testAPILogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAPIServer(sessions SessionService, files WorkspaceService) *Server {
	cfg := &config.Config{}
	cfg.Workspace.MaxFileSizeBytes = 1 << 20
	return NewServer(cfg, sessions, files, &fakeAuth{user: "alice"}, &fakeLimiter{}, &fakeChecker{}, testAPILogger())
}

// authedRequest builds a request carrying the principal the auth middleware
// would have attached.
func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := context.WithValue(req.Context(), userIDKey, "alice")
	return req.WithContext(ctx)
}

func TestHandleCreateSession(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("CreateSession", mock.Anything, "s1", "alice").Return(&orchestrator.Session{
		SessionID:   "s1",
		ContainerID: "f00dfeedc0ff",
	}, nil)

	req := authedRequest("POST", "/sessions", strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.handleCreateSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sess orchestrator.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "s1", sess.SessionID)
	assert.Equal(t, "f00dfeedc0ff", sess.ContainerID)
}

func TestHandleCreateSessionEmptyBody(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("CreateSession", mock.Anything, "", "alice").Return(&orchestrator.Session{
		SessionID:   "ab12cd34ef56",
		ContainerID: "f00dfeedc0ff",
	}, nil)

	req := authedRequest("POST", "/sessions", nil)
	rec := httptest.NewRecorder()

	s.handleCreateSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sess orchestrator.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "ab12cd34ef56", sess.SessionID)
}

func TestHandleCreateSessionInvalidJSON(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	req := authedRequest("POST", "/sessions", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()

	s.handleCreateSession(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockMgr.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCreateSessionIDTooLong(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	body := fmt.Sprintf(`{"session_id":%q}`, strings.Repeat("x", 257))
	req := authedRequest("POST", "/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleCreateSession(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockMgr.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDeleteSession(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("Delete", mock.Anything, "s1", "alice").Return(nil)

	req := authedRequest("DELETE", "/sessions/s1", nil)
	req.SetPathValue("id", "s1")
	rec := httptest.NewRecorder()

	s.handleDeleteSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "deleted", resp["status"])
	assert.Equal(t, "s1", resp["session_id"])
}

func TestHandleDeleteSessionForbidden(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("Delete", mock.Anything, "s1", "alice").
		Return(fmt.Errorf("%w: s1", orchestrator.ErrForbidden))

	req := authedRequest("DELETE", "/sessions/s1", nil)
	req.SetPathValue("id", "s1")
	rec := httptest.NewRecorder()

	s.handleDeleteSession(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var apiErr APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, ErrCodeForbidden, apiErr.Code)
}

func TestHandleHistory(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("History", mock.Anything, "s1", "alice", audit.DefaultHistoryLimit).Return([]*audit.Entry{
		{ID: 2, SessionID: "s1", Command: "ls"},
		{ID: 1, SessionID: "s1", Command: "pwd"},
	}, nil)

	req := authedRequest("GET", "/sessions/s1/history", nil)
	req.SetPathValue("id", "s1")
	rec := httptest.NewRecorder()

	s.handleHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []*audit.Entry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "ls", resp.Entries[0].Command)
}

func TestHandleHistoryCustomLimit(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	mockMgr.On("History", mock.Anything, "s1", "alice", 5).Return([]*audit.Entry{}, nil)

	req := authedRequest("GET", "/sessions/s1/history?limit=5", nil)
	req.SetPathValue("id", "s1")
	rec := httptest.NewRecorder()

	s.handleHistory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockMgr.AssertExpectations(t)
}

func TestHandleHistoryBadLimit(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr, &MockWorkspaceService{})

	for _, limit := range []string{"abc", "0", "-1", "501"} {
		req := authedRequest("GET", "/sessions/s1/history?limit="+limit, nil)
		req.SetPathValue("id", "s1")
		rec := httptest.NewRecorder()

		s.handleHistory(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
	mockMgr.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
