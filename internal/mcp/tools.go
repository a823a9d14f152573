package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nomomon/sandbox-api/internal/api"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

func (s *Server) registerTools() {
	s.srv.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create or reuse a sandbox session (container). Idempotent for the same session_id."),
		mcp.WithString("session_id",
			mcp.Description("Session identifier. Leave empty to have the server generate one.")),
	), s.handleCreateSession)

	s.srv.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Tear down a session: stop its container and remove it from the session store."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session to delete.")),
	), s.handleDeleteSession)

	s.srv.AddTool(mcp.NewTool("execute",
		mcp.WithDescription("Run a command in the session's container. The command must start with a whitelisted binary."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session to run in. Created on first use.")),
		mcp.WithString("command", mcp.Required(),
			mcp.Description("Shell command to run.")),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in seconds. Clamped to the server maximum; 0 means the server default.")),
		mcp.WithString("working_dir",
			mcp.Description("Working directory inside the container. Defaults to /workspace.")),
	), s.handleExecute)

	s.srv.AddTool(mcp.NewTool("workspace_list",
		mcp.WithDescription("List directory entries at path (relative to /workspace). Use empty path for the workspace root."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session whose workspace to list.")),
		mcp.WithString("path",
			mcp.Description("Directory path relative to /workspace.")),
	), s.handleWorkspaceList)

	s.srv.AddTool(mcp.NewTool("workspace_read",
		mcp.WithDescription("Read the file at path (relative to /workspace). Returns content and encoding (utf8 or base64)."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session whose workspace to read from.")),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("File path relative to /workspace.")),
	), s.handleWorkspaceRead)

	s.srv.AddTool(mcp.NewTool("workspace_write",
		mcp.WithDescription("Write content to the file at path (relative to /workspace). Parent directories are created as needed."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session whose workspace to write into.")),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("File path relative to /workspace.")),
		mcp.WithString("content", mcp.Required(),
			mcp.Description("UTF-8 file content.")),
	), s.handleWorkspaceWrite)

	s.srv.AddTool(mcp.NewTool("workspace_delete",
		mcp.WithDescription("Delete the file or directory at path (relative to /workspace)."),
		mcp.WithString("session_id", mcp.Required(),
			mcp.Description("Session whose workspace to delete from.")),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("Path relative to /workspace.")),
	), s.handleWorkspaceDelete)
}

func (s *Server) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := caller(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if res := s.throttle(ctx, user); res != nil {
		return res, nil
	}

	sessionID := req.GetString("session_id", "")
	if sessionID != "" {
		if err := api.ValidateSessionID(sessionID); err != nil {
			return validationError(err.Error()), nil
		}
	}

	sess, err := s.sessions.CreateSession(ctx, sessionID, user)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(sess), nil
}

func (s *Server) handleDeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := caller(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if res := s.throttle(ctx, user); res != nil {
		return res, nil
	}

	sessionID := req.GetString("session_id", "")
	if err := api.ValidateSessionID(sessionID); err != nil {
		return validationError(err.Error()), nil
	}

	if err := s.sessions.Delete(ctx, sessionID, user); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]string{
		"status":     "deleted",
		"session_id": sessionID,
	}), nil
}

func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := caller(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if res := s.throttle(ctx, user); res != nil {
		return res, nil
	}

	sessionID := req.GetString("session_id", "")
	if err := api.ValidateSessionID(sessionID); err != nil {
		return validationError(err.Error()), nil
	}
	command := req.GetString("command", "")
	if command == "" {
		return validationError("command is required"), nil
	}
	if err := s.whitelist.Check(command); err != nil {
		return toolError(err), nil
	}

	resp, err := s.sessions.Execute(ctx, orchestrator.ExecRequest{
		SessionID:  sessionID,
		UserID:     user,
		Command:    command,
		Timeout:    req.GetInt("timeout", 0),
		WorkingDir: req.GetString("working_dir", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(resp), nil
}

func (s *Server) handleWorkspaceList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	containerID, rel, errResult := s.attachWorkspace(ctx, req, "")
	if errResult != nil {
		return errResult, nil
	}

	entries, err := s.files.List(ctx, containerID, rel)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"entries": entries}), nil
}

func (s *Server) handleWorkspaceRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	containerID, rel, errResult := s.attachWorkspace(ctx, req, "read")
	if errResult != nil {
		return errResult, nil
	}

	content, err := s.files.Read(ctx, containerID, rel)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(content), nil
}

func (s *Server) handleWorkspaceWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	containerID, rel, errResult := s.attachWorkspace(ctx, req, "write")
	if errResult != nil {
		return errResult, nil
	}

	content, err := req.RequireString("content")
	if err != nil {
		return validationError("content is required"), nil
	}

	if err := s.files.Write(ctx, containerID, rel, []byte(content)); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]string{
		"status": "written",
		"path":   req.GetString("path", ""),
	}), nil
}

func (s *Server) handleWorkspaceDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	containerID, rel, errResult := s.attachWorkspace(ctx, req, "delete")
	if errResult != nil {
		return errResult, nil
	}

	if err := s.files.Delete(ctx, containerID, rel); err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]string{
		"status": "deleted",
		"path":   req.GetString("path", ""),
	}), nil
}

// attachWorkspace runs the shared front half of every workspace tool:
// identity, rate limit, session id check, path resolution and container
// attach. op names the tool for the path-required message; empty op means
// the root is a valid target. The path is resolved before the session is
// touched, so traversal probes never spin up containers.
func (s *Server) attachWorkspace(ctx context.Context, req mcp.CallToolRequest, op string) (containerID, rel string, errResult *mcp.CallToolResult) {
	user, err := caller(ctx)
	if err != nil {
		return "", "", toolError(err)
	}
	if res := s.throttle(ctx, user); res != nil {
		return "", "", res
	}

	sessionID := req.GetString("session_id", "")
	if err := api.ValidateSessionID(sessionID); err != nil {
		return "", "", validationError(err.Error())
	}

	rel, err = workspace.ResolvePath(req.GetString("path", ""))
	if err != nil {
		return "", "", toolError(err)
	}
	if rel == "" && op != "" {
		return "", "", validationError("path is required for " + op)
	}

	containerID, err = s.sessions.Attach(ctx, sessionID, user)
	if err != nil {
		return "", "", toolError(err)
	}
	return containerID, rel, nil
}
