package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nomomon/sandbox-api/internal/config"
	"github.com/nomomon/sandbox-api/internal/metrics"
)

type Server struct {
	cfg       *config.Config
	sessions  SessionService
	files     WorkspaceService
	auth      Authenticator
	limiter   RateLimiter
	whitelist CommandChecker
	logger    *slog.Logger
	mux       *http.ServeMux

	storePing   Pinger
	runtimePing Pinger
	mcp         http.Handler
}

func NewServer(cfg *config.Config, sessions SessionService, files WorkspaceService, authn Authenticator, limiter RateLimiter, whitelist CommandChecker, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		files:     files,
		auth:      authn,
		limiter:   limiter,
		whitelist: whitelist,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// SetReadyChecks wires the dependency pings behind GET /ready.
func (s *Server) SetReadyChecks(store, runtime Pinger) {
	s.storePing = store
	s.runtimePing = runtime
}

// SetMCPHandler mounts a tool-call handler under /mcp/. The handler does its
// own per-request authentication, so the middleware skips that subtree.
func (s *Server) SetMCPHandler(h http.Handler) {
	s.mcp = h
	s.mux.Handle("/mcp/", h)
	s.mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/mcp/", http.StatusTemporaryRedirect)
	})
}

func (s *Server) Handler() http.Handler {
	return s.metricsMiddleware(s.requestIDMiddleware(s.authMiddleware(s.rateLimitMiddleware(s.mux))))
}

func (s *Server) routes() {
	// Command execution
	s.mux.HandleFunc("POST /execute", s.handleExecute)

	// Session lifecycle
	s.mux.HandleFunc("POST /sessions", s.handleCreateSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /sessions/{id}/history", s.handleHistory)

	// Workspace file operations
	s.mux.HandleFunc("GET /sessions/{id}/workspace", s.handleWorkspaceList)
	s.mux.HandleFunc("DELETE /sessions/{id}/workspace", s.handleWorkspaceDelete)
	s.mux.HandleFunc("GET /sessions/{id}/workspace/content", s.handleWorkspaceRead)
	s.mux.HandleFunc("PUT /sessions/{id}/workspace/content", s.handleWorkspaceWrite)
	s.mux.HandleFunc("POST /sessions/{id}/workspace/upload", s.handleWorkspaceUpload)

	// Probes and metrics (no auth)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		ping Pinger
	}{
		{"store", s.storePing},
		{"runtime", s.runtimePing},
	}
	for _, c := range checks {
		if c.ping == nil {
			continue
		}
		if err := c.ping.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "dependency", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"reason": c.name + " unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
