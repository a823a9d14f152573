package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/store"
)

// Delete tears down a session and its container. Deleting a session that no
// longer exists succeeds, so retries and races with the reaper are harmless.
// Deleting another user's session is refused.
func (o *Orchestrator) Delete(ctx context.Context, sessionID, userID string) error {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return fmt.Errorf("%w: %s", ErrForbidden, sessionID)
	}

	if sess.ContainerID != "" {
		if err := o.runtime.RemoveContainer(ctx, sess.ContainerID); err != nil {
			o.logger.Warn("remove container",
				"session_id", sessionID,
				"container_id", docker.ShortID(sess.ContainerID),
				"error", err)
		}
	}
	if err := o.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	o.removeSessionLock(sessionID)
	o.logger.Info("session deleted", "session_id", sessionID, "user_id", userID)
	return nil
}

// History returns the most recent executions recorded for the session, newest
// first. Rows are scoped to the caller; if the session is currently live and
// owned by someone else the call is refused outright.
func (o *Orchestrator) History(ctx context.Context, sessionID, userID string, limit int) ([]*audit.Entry, error) {
	if o.auditLog == nil {
		return []*audit.Entry{}, nil
	}

	sess, err := o.store.Get(ctx, sessionID)
	if err == nil && sess.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, sessionID)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return o.auditLog.BySession(sessionID, userID, limit)
}
