package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/metrics"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

// ExecRequest is one command to run in a session's container.
type ExecRequest struct {
	SessionID  string
	UserID     string
	Command    string
	Timeout    int    // seconds; 0 means the configured default
	WorkingDir string // defaults to the workspace root
}

// ExecResponse is the outcome of a command. Timeouts and exec failures are
// reported in-band with exit code -1 rather than as errors.
type ExecResponse struct {
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
	ContainerID   string  `json:"container_id"`

	TimedOut bool `json:"-"`
}

// Execute runs a command in the session's container, creating the container
// first if needed. The session lease is refreshed on every call.
func (o *Orchestrator) Execute(ctx context.Context, req ExecRequest) (*ExecResponse, error) {
	containerID, err := o.Attach(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	timeout := clampTimeout(req.Timeout, o.cfg.Exec.DefaultTimeoutSeconds, o.cfg.Exec.MaxTimeoutSeconds)
	workdir := req.WorkingDir
	if workdir == "" {
		workdir = workspace.Root
	}

	resp := o.runExec(ctx, containerID, req.Command, timeout, workdir)
	resp.ContainerID = docker.ShortID(containerID)

	o.recordExecution(req, resp)
	o.logger.Info("command executed",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"command", truncate(req.Command, 200),
		"exit_code", resp.ExitCode,
		"execution_time", resp.ExecutionTime,
		"container_id", resp.ContainerID)
	return resp, nil
}

// runExec submits the exec and waits for completion or the clamped timeout.
// A timed-out exec is abandoned rather than killed; the container's pids
// ceiling bounds what it can leak.
func (o *Orchestrator) runExec(ctx context.Context, containerID, command string, timeout int, workdir string) *ExecResponse {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	// The slot pool caps concurrent exec waits process-wide. The timeout
	// keeps ticking while we queue.
	select {
	case o.execSlots <- struct{}{}:
	case <-execCtx.Done():
		return o.execFailure(execCtx, timeout, start, execCtx.Err())
	}
	defer func() { <-o.execSlots }()

	res, err := o.runtime.ExecAsUser(execCtx, containerID, []string{"sh", "-c", command}, workdir)
	if err != nil {
		return o.execFailure(execCtx, timeout, start, err)
	}

	elapsed := roundSeconds(time.Since(start))
	metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
	metrics.ExecDuration.Observe(elapsed)
	return &ExecResponse{
		Stdout:        sanitizeUTF8(res.Stdout),
		Stderr:        sanitizeUTF8(res.Stderr),
		ExitCode:      res.ExitCode,
		ExecutionTime: elapsed,
	}
}

func (o *Orchestrator) execFailure(execCtx context.Context, timeout int, start time.Time, err error) *ExecResponse {
	elapsed := roundSeconds(time.Since(start))
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		metrics.ExecutionsTotal.WithLabelValues("timeout").Inc()
		return &ExecResponse{
			Stderr:        fmt.Sprintf("Command timed out after %ds", timeout),
			ExitCode:      -1,
			ExecutionTime: elapsed,
			TimedOut:      true,
		}
	}
	metrics.ExecutionsTotal.WithLabelValues("error").Inc()
	return &ExecResponse{
		Stderr:        err.Error(),
		ExitCode:      -1,
		ExecutionTime: elapsed,
	}
}

func (o *Orchestrator) recordExecution(req ExecRequest, resp *ExecResponse) {
	if o.auditLog == nil {
		return
	}
	err := o.auditLog.Record(&audit.Entry{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		Command:    req.Command,
		ExitCode:   resp.ExitCode,
		DurationMS: int64(resp.ExecutionTime * 1000),
		TimedOut:   resp.TimedOut,
	})
	if err != nil {
		o.logger.Warn("record execution", "session_id", req.SessionID, "error", err)
	}
}

// clampTimeout applies the default for unset values and bounds the rest to
// [1, max].
func clampTimeout(requested, def, max int) int {
	if requested == 0 {
		requested = def
	}
	if requested < 1 {
		return 1
	}
	if requested > max {
		return max
	}
	return requested
}

func sanitizeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// roundSeconds rounds a duration to millisecond precision in seconds.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
