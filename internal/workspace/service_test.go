package workspace

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nomomon/sandbox-api/internal/docker"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Exec(ctx context.Context, containerID string, cmd []string, opts docker.ExecOpts) (*docker.ExecResult, error) {
	args := m.Called(ctx, containerID, cmd, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docker.ExecResult), args.Error(1)
}

// recordingExecutor captures every command and replies with a canned result.
type recordingExecutor struct {
	cmds [][]string
	res  *docker.ExecResult
}

func (r *recordingExecutor) Exec(_ context.Context, _ string, cmd []string, _ docker.ExecOpts) (*docker.ExecResult, error) {
	r.cmds = append(r.cmds, cmd)
	if r.res != nil {
		return r.res, nil
	}
	return &docker.ExecResult{}, nil
}

func TestListEntries(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, "c1", []string{"ls", "-1p", "/workspace/sub"}, docker.ExecOpts{Workdir: Root}).
		Return(&docker.ExecResult{Stdout: []byte("b.txt\nA/\nc.txt\n")}, nil)

	svc := New(exec, 0)
	entries, err := svc.List(context.Background(), "c1", "sub")
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Name: "A", Type: "dir"},
		{Name: "b.txt", Type: "file"},
		{Name: "c.txt", Type: "file"},
	}, entries)
	exec.AssertExpectations(t)
}

func TestListEmptyDir(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{Stdout: []byte("")}, nil)

	svc := New(exec, 0)
	entries, err := svc.List(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListNotFound(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{ExitCode: 1, Stderr: []byte("ls: /workspace/nope: No such file or directory")}, nil)

	svc := New(exec, 0)
	_, err := svc.List(context.Background(), "c1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadUTF8(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, "c1", []string{"cat", "/workspace/hello.txt"}, docker.ExecOpts{Workdir: Root}).
		Return(&docker.ExecResult{Stdout: []byte("hello\n")}, nil)

	svc := New(exec, 0)
	fc, err := svc.Read(context.Background(), "c1", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", fc.Content)
	assert.Equal(t, "utf8", fc.Encoding)
}

func TestReadBinary(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{Stdout: raw}, nil)

	svc := New(exec, 0)
	fc, err := svc.Read(context.Background(), "c1", "blob.bin")
	require.NoError(t, err)
	assert.Equal(t, "base64", fc.Encoding)
	decoded, err := base64.StdEncoding.DecodeString(fc.Content)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestReadNotFound(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{ExitCode: 1, Stderr: []byte("cat: can't open '/workspace/x': No such file or directory")}, nil)

	svc := New(exec, 0)
	_, err := svc.Read(context.Background(), "c1", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadDirectory(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{ExitCode: 1, Stderr: []byte("cat: read error: Is a directory")}, nil)

	svc := New(exec, 0)
	_, err := svc.Read(context.Background(), "c1", "sub")
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestReadTooLarge(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&docker.ExecResult{Stdout: []byte("hello")}, nil)

	svc := New(exec, 4)
	_, err := svc.Read(context.Background(), "c1", "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestWriteSingleChunk(t *testing.T) {
	exec := &recordingExecutor{}
	svc := New(exec, 0)

	err := svc.Write(context.Background(), "c1", "a.txt", []byte("hello"))
	require.NoError(t, err)

	require.Len(t, exec.cmds, 1)
	cmd := exec.cmds[0]
	require.Equal(t, []string{"sh", "-c"}, cmd[:2])
	want := "echo '" + base64.StdEncoding.EncodeToString([]byte("hello")) + "' | base64 -d > '/workspace/a.txt'"
	assert.Equal(t, want, cmd[2])
}

func TestWriteCreatesParents(t *testing.T) {
	exec := &recordingExecutor{}
	svc := New(exec, 0)

	err := svc.Write(context.Background(), "c1", "sub/dir/f.txt", []byte("x"))
	require.NoError(t, err)

	require.Len(t, exec.cmds, 2)
	assert.Equal(t, []string{"mkdir", "-p", "/workspace/sub/dir"}, exec.cmds[0])
	assert.Contains(t, exec.cmds[1][2], "'/workspace/sub/dir/f.txt'")
}

func TestWriteEmptyTouches(t *testing.T) {
	exec := &recordingExecutor{}
	svc := New(exec, 0)

	err := svc.Write(context.Background(), "c1", "empty.txt", nil)
	require.NoError(t, err)

	require.Len(t, exec.cmds, 1)
	assert.Equal(t, []string{"touch", "/workspace/empty.txt"}, exec.cmds[0])
}

func TestWriteEmptyTouchFailure(t *testing.T) {
	exec := &recordingExecutor{res: &docker.ExecResult{
		ExitCode: 1,
		Stderr:   []byte("touch: empty.txt: Is a directory"),
	}}
	svc := New(exec, 0)

	err := svc.Write(context.Background(), "c1", "empty.txt", nil)
	assert.ErrorIs(t, err, ErrOpFailed)
	assert.Contains(t, err.Error(), "Is a directory")
}

func TestWriteChunksLargePayloads(t *testing.T) {
	exec := &recordingExecutor{}
	svc := New(exec, 0)

	content := []byte(strings.Repeat("a", writeChunkSize+1))
	err := svc.Write(context.Background(), "c1", "big.txt", content)
	require.NoError(t, err)

	require.Len(t, exec.cmds, 2)
	assert.Contains(t, exec.cmds[0][2], "base64 -d > ")
	assert.Contains(t, exec.cmds[1][2], "base64 -d >> ")
}

func TestWriteTooLarge(t *testing.T) {
	exec := &mockExecutor{}
	svc := New(exec, 4)

	err := svc.Write(context.Background(), "c1", "big.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrTooLarge)
	exec.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Exec", mock.Anything, "c1", []string{"rm", "-rf", "/workspace/old"}, docker.ExecOpts{Workdir: Root}).
		Return(&docker.ExecResult{}, nil)

	svc := New(exec, 0)
	require.NoError(t, svc.Delete(context.Background(), "c1", "old"))
	exec.AssertExpectations(t)
}

func TestDeleteRootRefused(t *testing.T) {
	exec := &mockExecutor{}
	svc := New(exec, 0)

	err := svc.Delete(context.Background(), "c1", "")
	assert.ErrorIs(t, err, ErrRootDelete)
	exec.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestShQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shQuote("plain"))
	assert.Equal(t, `'a'\''b'`, shQuote("a'b"))
}
