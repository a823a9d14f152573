package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, sessionID, userID, containerID string) error {
	args := m.Called(ctx, sessionID, userID, containerID)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	args := m.Called(ctx, sessionID)
	if sess := args.Get(0); sess != nil {
		return sess.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ContainerID(ctx context.Context, sessionID string) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Refresh(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockStore) SetContainer(ctx context.Context, sessionID, containerID string) error {
	args := m.Called(ctx, sessionID, containerID)
	return args.Error(0)
}

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) CreateContainer(ctx context.Context, sessionID, userID string) (string, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockRuntime) ContainerRunning(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRuntime) ContainerIDByName(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) ExecAsUser(ctx context.Context, containerID string, cmd []string, workdir string) (*docker.ExecResult, error) {
	args := m.Called(ctx, containerID, cmd, workdir)
	if res := args.Get(0); res != nil {
		return res.(*docker.ExecResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Record(e *audit.Entry) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockAuditor) BySession(sessionID, userID string, limit int) ([]*audit.Entry, error) {
	args := m.Called(sessionID, userID, limit)
	if entries := args.Get(0); entries != nil {
		return entries.([]*audit.Entry), args.Error(1)
	}
	return nil, args.Error(1)
}
