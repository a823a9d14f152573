package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/nomomon/sandbox-api/internal/auth"
	"github.com/nomomon/sandbox-api/internal/command"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/ratelimit"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) CreateSession(ctx context.Context, sessionID, userID string) (*orchestrator.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if sess := args.Get(0); sess != nil {
		return sess.(*orchestrator.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Delete(ctx context.Context, sessionID, userID string) error {
	args := m.Called(ctx, sessionID, userID)
	return args.Error(0)
}

func (m *MockSessionService) Execute(ctx context.Context, req orchestrator.ExecRequest) (*orchestrator.ExecResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*orchestrator.ExecResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Attach(ctx context.Context, sessionID, userID string) (string, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.String(0), args.Error(1)
}

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) List(ctx context.Context, containerID, rel string) ([]workspace.Entry, error) {
	args := m.Called(ctx, containerID, rel)
	if entries := args.Get(0); entries != nil {
		return entries.([]workspace.Entry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWorkspaceService) Read(ctx context.Context, containerID, rel string) (*workspace.FileContent, error) {
	args := m.Called(ctx, containerID, rel)
	if content := args.Get(0); content != nil {
		return content.(*workspace.FileContent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWorkspaceService) Write(ctx context.Context, containerID, rel string, content []byte) error {
	args := m.Called(ctx, containerID, rel, content)
	return args.Error(0)
}

func (m *MockWorkspaceService) Delete(ctx context.Context, containerID, rel string) error {
	args := m.Called(ctx, containerID, rel)
	return args.Error(0)
}

type fakeAuth struct {
	user string
}

func (f *fakeAuth) Authenticate(r *http.Request) (string, error) {
	if f.user == "" {
		return "", auth.ErrUnauthorized
	}
	return f.user, nil
}

// fakeLimiter refuses requests once limit admissions have happened.
type fakeLimiter struct {
	admitted int
	limit    int
}

func (f *fakeLimiter) Allow(ctx context.Context, userID string) error {
	if f.limit > 0 && f.admitted >= f.limit {
		return ratelimit.ErrLimited
	}
	f.admitted++
	return nil
}

type fakeChecker struct {
	deny []string
}

func (f *fakeChecker) Check(cmd string) error {
	for _, word := range f.deny {
		if strings.HasPrefix(cmd, word) {
			return command.ErrNotAllowed
		}
	}
	return nil
}
