// Package orchestrator owns the session-to-container lifecycle: adopting or
// creating containers on demand, running commands with enforced timeouts,
// and tearing sessions down. The HTTP and MCP facades are thin shells over
// the operations here.
package orchestrator

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/nomomon/sandbox-api/internal/config"
)

var (
	ErrForbidden = errors.New("session belongs to another user")
	ErrRuntime   = errors.New("container runtime unavailable")
)

type Orchestrator struct {
	cfg      *config.Config
	store    Store
	runtime  Runtime
	auditLog Auditor
	logger   *slog.Logger

	// Per-session mutexes serialize reconciliation so concurrent requests
	// for one session cannot race each other into double creates.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	// Bounded exec parallelism across all sessions.
	execSlots chan struct{}
}

func New(cfg *config.Config, st Store, rt Runtime, aud Auditor, logger *slog.Logger) *Orchestrator {
	maxConcurrent := cfg.Exec.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		runtime:   rt,
		auditLog:  aud,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		execSlots: make(chan struct{}, maxConcurrent),
	}
}

func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	mu, ok := o.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[id] = mu
	}
	return mu
}

func (o *Orchestrator) removeSessionLock(id string) {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	delete(o.locks, id)
}
