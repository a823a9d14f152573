// Package command validates commands against the configured whitelist before
// they reach a container. The whitelist guards against accidental misuse by
// an authorized caller; real isolation comes from the container sandbox.
package command

import (
	"errors"
	"strings"

	"github.com/mgutz/str"
)

var ErrNotAllowed = errors.New("command not allowed by whitelist")

// Whitelist admits commands whose first shell word names an allowed binary.
type Whitelist struct {
	allowed map[string]struct{}
}

func NewWhitelist(commands []string) *Whitelist {
	allowed := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		allowed[c] = struct{}{}
	}
	return &Whitelist{allowed: allowed}
}

// Check parses the command with POSIX shell-word rules and admits it iff the
// basename of the first token is whitelisted. Empty commands are rejected.
func (w *Whitelist) Check(command string) error {
	stripped := strings.TrimSpace(command)
	if stripped == "" {
		return ErrNotAllowed
	}
	argv := str.ToArgv(stripped)
	if len(argv) == 0 {
		return ErrNotAllowed
	}
	binary := strings.ToLower(argv[0])
	if i := strings.LastIndex(binary, "/"); i >= 0 {
		binary = binary[i+1:]
	}
	if _, ok := w.allowed[binary]; !ok {
		return ErrNotAllowed
	}
	return nil
}
