package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/nomomon/sandbox-api/internal/config"
)

// Labels attached to every managed container. The reaper uses them to find
// containers and decide their age without consulting the session store.
const (
	LabelSessionID = "exec.session_id"
	LabelUserID    = "exec.user_id"
	LabelCreatedAt = "exec.created_at"
)

// Execs run as an unprivileged fixed uid:gid, matching the container user.
const sandboxUser = "1000:1000"

// ErrNotFound is returned when a container no longer exists.
var ErrNotFound = errors.New("container not found")

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-]`)

func sanitizeName(s string) string {
	s = nameSanitizer.ReplaceAllString(s, "-")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// ContainerName returns the deterministic name for a session's container,
// capped at 64 characters.
func ContainerName(sessionID, userID string) string {
	name := "exec-" + sanitizeName(userID) + "-" + sanitizeName(sessionID)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// profile is the container resource profile with all size strings resolved.
type profile struct {
	image          string
	memBytes       int64
	memSwapBytes   int64
	cpuPeriod      int64
	cpuQuota       int64
	pidsLimit      int64
	tmpBytes       int64
	workspaceBytes int64
	ulimits        []*units.Ulimit
}

func newProfile(cfg config.ContainerConfig) (*profile, error) {
	memBytes, err := units.RAMInBytes(cfg.MemLimit)
	if err != nil {
		return nil, fmt.Errorf("parse mem_limit: %w", err)
	}
	memSwapBytes, err := units.RAMInBytes(cfg.MemSwapLimit)
	if err != nil {
		return nil, fmt.Errorf("parse memswap_limit: %w", err)
	}
	tmpBytes, err := units.RAMInBytes(cfg.TmpfsTmpSize)
	if err != nil {
		return nil, fmt.Errorf("parse tmpfs_tmp_size: %w", err)
	}
	workspaceBytes, err := units.RAMInBytes(cfg.TmpfsWorkspaceSize)
	if err != nil {
		return nil, fmt.Errorf("parse tmpfs_workspace_size: %w", err)
	}

	return &profile{
		image:          cfg.Image,
		memBytes:       memBytes,
		memSwapBytes:   memSwapBytes,
		cpuPeriod:      cfg.CPUPeriod,
		cpuQuota:       cfg.CPUQuota,
		pidsLimit:      cfg.PidsLimit,
		tmpBytes:       tmpBytes,
		workspaceBytes: workspaceBytes,
		ulimits: []*units.Ulimit{
			{Name: "nofile", Soft: cfg.UlimitNofileSoft, Hard: cfg.UlimitNofileHard},
			{Name: "nproc", Soft: cfg.UlimitNprocSoft, Hard: cfg.UlimitNprocHard},
		},
	}, nil
}

func (p *profile) containerConfig(sessionID, userID, createdAt string) *container.Config {
	return &container.Config{
		Image: p.image,
		Cmd:   []string{"sleep", "infinity"},
		User:  sandboxUser,
		Labels: map[string]string{
			LabelSessionID: sessionID,
			LabelUserID:    userID,
			LabelCreatedAt: createdAt,
		},
	}
}

func (p *profile) hostConfig() *container.HostConfig {
	return &container.HostConfig{
		ReadonlyRootfs: true,
		NetworkMode:    "none",
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Resources: container.Resources{
			Memory:     p.memBytes,
			MemorySwap: p.memSwapBytes,
			CPUPeriod:  p.cpuPeriod,
			CPUQuota:   p.cpuQuota,
			PidsLimit:  int64Ptr(p.pidsLimit),
			Ulimits:    p.ulimits,
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeTmpfs,
				Target: "/tmp",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: p.tmpBytes,
					Options:   [][]string{{"noexec"}, {"nosuid"}},
				},
			},
			{
				Type:   mount.TypeTmpfs,
				Target: "/workspace",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: p.workspaceBytes,
					Options:   [][]string{{"noexec"}, {"nosuid"}},
				},
			},
		},
	}
}

type Client struct {
	docker  *client.Client
	profile *profile
}

func New(cfg config.ContainerConfig) (*Client, error) {
	prof, err := newProfile(cfg)
	if err != nil {
		return nil, err
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: cli, profile: prof}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

// CreateContainer creates and starts a sandbox container for a session.
func (c *Client) CreateContainer(ctx context.Context, sessionID, userID string) (string, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	name := ContainerName(sessionID, userID)

	resp, err := c.docker.ContainerCreate(ctx,
		c.profile.containerConfig(sessionID, userID, createdAt),
		c.profile.hostConfig(),
		nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up on start failure.
		c.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start: %w", err)
	}

	return resp.ID, nil
}

// RemoveContainer force-removes a container. Missing containers are not an error.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// ContainerRunning reports whether the container is currently running.
// Returns ErrNotFound if the container no longer exists.
func (c *Client) ContainerRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("container inspect: %w", err)
	}
	return info.State.Running, nil
}

// ContainerIDByName resolves a container name to its full ID.
// Returns ErrNotFound if no container has that name.
func (c *Client) ContainerIDByName(ctx context.Context, name string) (string, error) {
	info, err := c.docker.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("container inspect: %w", err)
	}
	return info.ID, nil
}

type ExecOpts struct {
	Workdir string
	// User overrides the exec user; empty runs as the container user.
	User string
}

type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Exec runs a command inside the container and returns demultiplexed output
// and the exit code. Cancelling ctx abandons the exec: the attached stream is
// closed and the command keeps running inside the container until it finishes
// on its own.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string, opts ExecOpts) (*ExecResult, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		User:         opts.User,
		WorkingDir:   opts.Workdir,
	}

	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	// The hijacked stream does not watch ctx on its own; close it on cancel
	// so the copy below unblocks.
	stop := context.AfterFunc(ctx, func() { attachResp.Close() })
	defer stop()

	// Demultiplex Docker's stdout/stderr stream (8-byte headers).
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("exec read: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}

	return &ExecResult{
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// ExecAsUser runs a command as the fixed sandbox user with a working directory.
func (c *Client) ExecAsUser(ctx context.Context, containerID string, cmd []string, workdir string) (*ExecResult, error) {
	return c.Exec(ctx, containerID, cmd, ExecOpts{Workdir: workdir, User: sandboxUser})
}

// ContainerInfo describes a managed container found via labels.
type ContainerInfo struct {
	ID        string
	SessionID string
	UserID    string
	CreatedAt string
}

// ListManaged returns all containers carrying the session label, including
// stopped ones.
func (c *Client) ListManaged(ctx context.Context) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", LabelSessionID)

	containers, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		result = append(result, ContainerInfo{
			ID:        ctr.ID,
			SessionID: ctr.Labels[LabelSessionID],
			UserID:    ctr.Labels[LabelUserID],
			CreatedAt: ctr.Labels[LabelCreatedAt],
		})
	}
	return result, nil
}

// ShortID returns the 12-character form of a container id, the length Docker
// itself prints.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func int64Ptr(v int64) *int64 {
	return &v
}
