// Package workspace implements file operations on a session's workspace
// directory. Everything goes through execs inside the container: the rootfs
// is read-only and the workspace is a tmpfs, so archive-based copies are not
// usable.
package workspace

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nomomon/sandbox-api/internal/docker"
)

var (
	ErrNotFound    = errors.New("path not found")
	ErrIsDirectory = errors.New("path is a directory")
	ErrTooLarge    = errors.New("exceeds max file size")
	ErrRootDelete  = errors.New("cannot delete workspace root")
	ErrOpFailed    = errors.New("workspace operation failed")
)

// Executor runs commands inside a session container. *docker.Client
// satisfies it.
type Executor interface {
	Exec(ctx context.Context, containerID string, cmd []string, opts docker.ExecOpts) (*docker.ExecResult, error)
}

// Service reads, writes, lists and deletes files under the workspace root of
// a running container.
type Service struct {
	exec        Executor
	maxFileSize int64
}

func New(exec Executor, maxFileSize int64) *Service {
	return &Service{exec: exec, maxFileSize: maxFileSize}
}

// Entry is a single name in a directory listing.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "dir"
}

// FileContent is the result of reading a file. Binary data is base64-encoded
// and marked as such.
type FileContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"` // "utf8" or "base64"
}

// List returns the entries at rel, sorted by lowercased name. ls -1p marks
// directories with a trailing slash.
func (s *Service) List(ctx context.Context, containerID, rel string) ([]Entry, error) {
	res, err := s.exec.Exec(ctx, containerID, []string{"ls", "-1p", ContainerPath(rel)}, docker.ExecOpts{Workdir: Root})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		msg := execErrText(res)
		if isNotFound(msg) {
			return nil, ErrNotFound
		}
		return nil, opError(msg, "list failed")
	}

	entries := []Entry{}
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(line, "/"), Type: "dir"})
		} else {
			entries = append(entries, Entry{Name: line, Type: "file"})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].Type < entries[j].Type
	})
	return entries, nil
}

// Read returns the content of the file at rel. Contents that decode as UTF-8
// come back verbatim with encoding "utf8"; anything else is base64-encoded.
// The size limit is checked against what cat produced, so a too-large file
// still costs a full read.
func (s *Service) Read(ctx context.Context, containerID, rel string) (*FileContent, error) {
	res, err := s.exec.Exec(ctx, containerID, []string{"cat", ContainerPath(rel)}, docker.ExecOpts{Workdir: Root})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		msg := execErrText(res)
		switch {
		case isNotFound(msg):
			return nil, ErrNotFound
		case strings.Contains(strings.ToLower(msg), "directory"):
			return nil, ErrIsDirectory
		default:
			return nil, opError(msg, "read failed")
		}
	}

	data := res.Stdout
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, s.maxFileSize)
	}
	if utf8.Valid(data) {
		return &FileContent{Content: string(data), Encoding: "utf8"}, nil
	}
	return &FileContent{Content: base64.StdEncoding.EncodeToString(data), Encoding: "base64"}, nil
}

// writeChunkSize is the raw chunk size for writes. Each chunk travels as a
// base64 argument to sh, so it has to stay well under the exec argv limit.
const writeChunkSize = 24 * 1024

// Write stores content at rel, creating parent directories as needed. The
// payload is chunked, base64-encoded and decoded inside the container; the
// first chunk truncates the target, the rest append.
func (s *Service) Write(ctx context.Context, containerID, rel string, content []byte) error {
	if s.maxFileSize > 0 && int64(len(content)) > s.maxFileSize {
		return fmt.Errorf("%w (%d bytes)", ErrTooLarge, s.maxFileSize)
	}

	cpath := ContainerPath(rel)
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		parent := Root + "/" + rel[:i]
		res, err := s.exec.Exec(ctx, containerID, []string{"mkdir", "-p", parent}, docker.ExecOpts{Workdir: Root})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return opError(execErrText(res), "mkdir failed")
		}
	}

	if len(content) == 0 {
		res, err := s.exec.Exec(ctx, containerID, []string{"touch", cpath}, docker.ExecOpts{Workdir: Root})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return opError(execErrText(res), "touch failed")
		}
		return nil
	}

	for off := 0; off < len(content); off += writeChunkSize {
		end := off + writeChunkSize
		if end > len(content) {
			end = len(content)
		}
		b64 := base64.StdEncoding.EncodeToString(content[off:end])
		redir := ">>"
		if off == 0 {
			redir = ">"
		}
		cmd := fmt.Sprintf("echo '%s' | base64 -d %s %s", b64, redir, shQuote(cpath))
		res, err := s.exec.Exec(ctx, containerID, []string{"sh", "-c", cmd}, docker.ExecOpts{Workdir: Root})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return opError(execErrText(res), "write failed")
		}
	}
	return nil
}

// Delete removes the file or directory at rel. Deleting the workspace root
// itself is refused.
func (s *Service) Delete(ctx context.Context, containerID, rel string) error {
	if rel == "" {
		return ErrRootDelete
	}
	res, err := s.exec.Exec(ctx, containerID, []string{"rm", "-rf", ContainerPath(rel)}, docker.ExecOpts{Workdir: Root})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		msg := execErrText(res)
		if isNotFound(msg) {
			return ErrNotFound
		}
		return opError(msg, "delete failed")
	}
	return nil
}

// execErrText extracts the error text of a failed exec, preferring stderr.
func execErrText(res *docker.ExecResult) string {
	if s := strings.TrimSpace(string(res.Stderr)); s != "" {
		return s
	}
	return strings.TrimSpace(string(res.Stdout))
}

func isNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "No such file") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "cannot open")
}

func opError(msg, fallback string) error {
	if msg == "" {
		msg = fallback
	}
	return fmt.Errorf("%w: %s", ErrOpFailed, msg)
}

// shQuote wraps s in single quotes for use inside sh -c, escaping embedded
// single quotes.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
