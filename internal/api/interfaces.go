package api

import (
	"context"
	"net/http"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

// SessionService abstracts the orchestrator operations API handlers call.
type SessionService interface {
	CreateSession(ctx context.Context, sessionID, userID string) (*orchestrator.Session, error)
	Delete(ctx context.Context, sessionID, userID string) error
	Execute(ctx context.Context, req orchestrator.ExecRequest) (*orchestrator.ExecResponse, error)
	History(ctx context.Context, sessionID, userID string, limit int) ([]*audit.Entry, error)
	Attach(ctx context.Context, sessionID, userID string) (string, error)
}

// WorkspaceService abstracts workspace file operations against a container.
type WorkspaceService interface {
	List(ctx context.Context, containerID, rel string) ([]workspace.Entry, error)
	Read(ctx context.Context, containerID, rel string) (*workspace.FileContent, error)
	Write(ctx context.Context, containerID, rel string, content []byte) error
	Delete(ctx context.Context, containerID, rel string) error
}

// Authenticator resolves the request principal.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// RateLimiter admits or refuses a request for a principal.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) error
}

// CommandChecker vets a command line against the whitelist.
type CommandChecker interface {
	Check(command string) error
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
