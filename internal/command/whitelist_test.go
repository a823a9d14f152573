package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testWhitelist() *Whitelist {
	return NewWhitelist([]string{"echo", "python3", "ls", "cat"})
}

func TestCheckAllowed(t *testing.T) {
	w := testWhitelist()
	for _, cmd := range []string{
		"echo hi",
		"ls -la",
		"python3 -c 'print(1)'",
		"cat file.txt",
		"  echo padded  ",
	} {
		assert.NoError(t, w.Check(cmd), "command %q", cmd)
	}
}

func TestCheckBasename(t *testing.T) {
	w := testWhitelist()
	assert.NoError(t, w.Check("/usr/bin/python3 script.py"))
	assert.NoError(t, w.Check("/bin/echo hi"))
	assert.ErrorIs(t, w.Check("/usr/bin/curl http://example.com"), ErrNotAllowed)
}

func TestCheckCaseInsensitive(t *testing.T) {
	w := testWhitelist()
	assert.NoError(t, w.Check("ECHO hi"))
	assert.NoError(t, w.Check("Python3 -V"))
}

func TestCheckRejected(t *testing.T) {
	w := testWhitelist()
	for _, cmd := range []string{
		"",
		"   ",
		"rm -rf /",
		"curl http://example.com",
		"sudo ls",
		"bin/",
	} {
		assert.ErrorIs(t, w.Check(cmd), ErrNotAllowed, "command %q", cmd)
	}
}

func TestEmptyWhitelistRejectsEverything(t *testing.T) {
	w := NewWhitelist(nil)
	assert.ErrorIs(t, w.Check("echo hi"), ErrNotAllowed)
}
