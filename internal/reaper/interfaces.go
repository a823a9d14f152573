package reaper

import (
	"context"
	"time"

	"github.com/nomomon/sandbox-api/internal/docker"
)

// Runtime is the slice of the container runtime the reaper uses.
type Runtime interface {
	ListManaged(ctx context.Context) ([]docker.ContainerInfo, error)
	RemoveContainer(ctx context.Context, containerID string) error
}

// Store deletes the session state behind reaped containers.
type Store interface {
	Delete(ctx context.Context, sessionID string) error
}

// AuditPruner trims execution records past their retention.
type AuditPruner interface {
	Prune(retention time.Duration) (int64, error)
}
