// Package mcp exposes the sandbox operations as LLM-callable tools over the
// Model Context Protocol. The transport is streamable HTTP mounted under
// /mcp/; every tool call is authenticated from its own request headers and
// failures come back as tool results carrying {"error", "status_code"},
// never as protocol errors.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nomomon/sandbox-api/internal/api"
	"github.com/nomomon/sandbox-api/internal/auth"
	"github.com/nomomon/sandbox-api/internal/metrics"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/ratelimit"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

// SessionService is the slice of the orchestrator the tools consume.
type SessionService interface {
	CreateSession(ctx context.Context, sessionID, userID string) (*orchestrator.Session, error)
	Delete(ctx context.Context, sessionID, userID string) error
	Execute(ctx context.Context, req orchestrator.ExecRequest) (*orchestrator.ExecResponse, error)
	Attach(ctx context.Context, sessionID, userID string) (string, error)
}

// WorkspaceService performs file operations inside a session's container.
type WorkspaceService interface {
	List(ctx context.Context, containerID, rel string) ([]workspace.Entry, error)
	Read(ctx context.Context, containerID, rel string) (*workspace.FileContent, error)
	Write(ctx context.Context, containerID, rel string, content []byte) error
	Delete(ctx context.Context, containerID, rel string) error
}

// Authenticator resolves the calling user from request credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// RateLimiter enforces the per-user request budget.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) error
}

// CommandChecker rejects commands whose binary is not whitelisted.
type CommandChecker interface {
	Check(command string) error
}

// Server registers the sandbox tools on an MCP server and serves them over
// HTTP.
type Server struct {
	sessions  SessionService
	files     WorkspaceService
	auth      Authenticator
	limiter   RateLimiter
	whitelist CommandChecker
	logger    *slog.Logger
	srv       *mcpserver.MCPServer
}

func New(version string, sessions SessionService, files WorkspaceService, authn Authenticator, limiter RateLimiter, whitelist CommandChecker, logger *slog.Logger) *Server {
	s := &Server{
		sessions:  sessions,
		files:     files,
		auth:      authn,
		limiter:   limiter,
		whitelist: whitelist,
		logger:    logger,
	}
	s.srv = mcpserver.NewMCPServer("Sandbox API", version,
		mcpserver.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// Handler returns the streamable HTTP transport. Stateless mode keeps tool
// calls independent, so any replica can serve any request.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.srv,
		mcpserver.WithHTTPContextFunc(s.withIdentity),
		mcpserver.WithStateLess(true),
	)
}

type contextKey string

const userKey contextKey = "mcp_user"

// withIdentity resolves the caller from the HTTP request and stashes it for
// the tool handlers. An unauthenticated request still reaches the tools; they
// report the missing identity as a result payload.
func (s *Server) withIdentity(ctx context.Context, r *http.Request) context.Context {
	user, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Debug("unauthenticated tool request", "error", err)
		return ctx
	}
	return context.WithValue(ctx, userKey, user)
}

// caller returns the authenticated user behind a tool call.
func caller(ctx context.Context) (string, error) {
	user, _ := ctx.Value(userKey).(string)
	if user == "" {
		return "", auth.ErrUnauthorized
	}
	return user, nil
}

// throttle charges one tool call against the user's budget. Returns nil when
// the call may proceed.
func (s *Server) throttle(ctx context.Context, user string) *mcp.CallToolResult {
	err := s.limiter.Allow(ctx, user)
	if err == nil {
		return nil
	}
	if errors.Is(err, ratelimit.ErrLimited) {
		metrics.RateLimitedTotal.Inc()
	}
	return toolError(err)
}

// toolError reports err with the status the REST surface would use, as a
// tool result the model can read.
func toolError(err error) *mcp.CallToolResult {
	_, status := api.Classify(err)
	return errorResult(err.Error(), status)
}

// validationError reports a malformed tool call.
func validationError(msg string) *mcp.CallToolResult {
	return errorResult(msg, http.StatusBadRequest)
}

func errorResult(msg string, status int) *mcp.CallToolResult {
	body, _ := json.Marshal(map[string]any{
		"error":       msg,
		"status_code": status,
	})
	return mcp.NewToolResultError(string(body))
}

// toolJSON renders a successful payload as a JSON text result.
func toolJSON(v any) *mcp.CallToolResult {
	body, err := json.Marshal(v)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(body))
}
