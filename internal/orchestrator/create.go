package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/metrics"
	"github.com/nomomon/sandbox-api/internal/store"
)

// Session is what session-producing operations hand back to the facades.
type Session struct {
	SessionID   string `json:"session_id"`
	ContainerID string `json:"container_id"`
}

// CreateSession ensures a running container for the session and returns both
// ids. An empty session id gets a server-generated one. Calling it again for
// an existing session is idempotent and reuses the container.
func (o *Orchestrator) CreateSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()[:12]
	}
	containerID, err := o.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &Session{SessionID: sessionID, ContainerID: docker.ShortID(containerID)}, nil
}

// GetOrCreate returns the id of a running container for the session,
// adopting the stored one when it is still alive and replacing it when it
// died underneath us.
func (o *Orchestrator) GetOrCreate(ctx context.Context, sessionID, userID string) (string, error) {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return o.reconcile(ctx, sessionID, userID)
}

// Attach resolves the session to a running container and slides the session
// lease forward. Every command and workspace operation goes through here.
func (o *Orchestrator) Attach(ctx context.Context, sessionID, userID string) (string, error) {
	containerID, err := o.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return "", err
	}
	if err := o.store.Refresh(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("refresh session", "session_id", sessionID, "error", err)
	}
	return containerID, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, sessionID, userID string) (string, error) {
	containerID, err := o.store.ContainerID(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if containerID != "" {
		running, err := o.runtime.ContainerRunning(ctx, containerID)
		if err == nil && running {
			return containerID, nil
		}
		if err != nil && !errors.Is(err, docker.ErrNotFound) {
			return "", fmt.Errorf("%w: inspect container: %v", ErrRuntime, err)
		}
		if err == nil {
			// Exited. Clear it out before recreating; removal failures are
			// not fatal since the replacement gets a fresh name anyway once
			// the old container is gone.
			if rmErr := o.runtime.RemoveContainer(ctx, containerID); rmErr != nil {
				o.logger.Warn("remove exited container",
					"session_id", sessionID,
					"container_id", docker.ShortID(containerID),
					"error", rmErr)
			}
		}
		if err := o.store.Delete(ctx, sessionID); err != nil {
			return "", err
		}
	}

	newID, err := o.runtime.CreateContainer(ctx, sessionID, userID)
	if err != nil {
		// A concurrent caller in another process may have won the name; if
		// its container is up, adopt it instead of failing the request.
		if adopted, ok := o.adoptExisting(ctx, sessionID, userID); ok {
			return adopted, nil
		}
		return "", fmt.Errorf("%w: create container: %v", ErrRuntime, err)
	}

	if err := o.store.Create(ctx, sessionID, userID, newID); err != nil {
		_ = o.runtime.RemoveContainer(ctx, newID)
		return "", fmt.Errorf("store session: %w", err)
	}

	metrics.ContainersCreated.Inc()
	o.logger.Info("container created",
		"session_id", sessionID,
		"user_id", userID,
		"container_id", docker.ShortID(newID))
	return newID, nil
}

func (o *Orchestrator) adoptExisting(ctx context.Context, sessionID, userID string) (string, bool) {
	name := docker.ContainerName(sessionID, userID)
	existing, err := o.runtime.ContainerIDByName(ctx, name)
	if err != nil {
		return "", false
	}
	running, err := o.runtime.ContainerRunning(ctx, existing)
	if err != nil || !running {
		return "", false
	}
	if err := o.store.SetContainer(ctx, sessionID, existing); err != nil {
		o.logger.Warn("adopt container", "session_id", sessionID, "error", err)
		return "", false
	}
	return existing, true
}
