package reaper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nomomon/sandbox-api/internal/docker"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) ListManaged(ctx context.Context) ([]docker.ContainerInfo, error) {
	args := m.Called(ctx)
	if containers := args.Get(0); containers != nil {
		return containers.([]docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockAuditPruner struct {
	mock.Mock
}

func (m *MockAuditPruner) Prune(retention time.Duration) (int64, error) {
	args := m.Called(retention)
	return args.Get(0).(int64), args.Error(1)
}
