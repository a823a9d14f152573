package orchestrator

import (
	"context"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/store"
)

// Store is the slice of the session store the orchestrator uses.
type Store interface {
	Create(ctx context.Context, sessionID, userID, containerID string) error
	Get(ctx context.Context, sessionID string) (*store.Session, error)
	ContainerID(ctx context.Context, sessionID string) (string, error)
	Refresh(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	SetContainer(ctx context.Context, sessionID, containerID string) error
}

// Runtime is the slice of the container runtime the orchestrator uses.
type Runtime interface {
	CreateContainer(ctx context.Context, sessionID, userID string) (string, error)
	RemoveContainer(ctx context.Context, containerID string) error
	ContainerRunning(ctx context.Context, containerID string) (bool, error)
	ContainerIDByName(ctx context.Context, name string) (string, error)
	ExecAsUser(ctx context.Context, containerID string, cmd []string, workdir string) (*docker.ExecResult, error)
}

// Auditor records finished executions and serves history queries.
type Auditor interface {
	Record(e *audit.Entry) error
	BySession(sessionID, userID string, limit int) ([]*audit.Entry, error)
}
