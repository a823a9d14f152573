package workspace

import (
	"errors"
	"strings"
)

// Root is the directory inside the container that every workspace operation
// is confined to. The container profile mounts a dedicated tmpfs here.
const Root = "/workspace"

// ErrBadPath indicates a client-supplied path that cannot be resolved inside
// the workspace, e.g. one that climbs above the root with "..".
var ErrBadPath = errors.New("path escapes workspace")

// ResolvePath normalizes a client-supplied path to a clean path relative to
// the workspace root. Leading slashes are stripped, empty and "." segments
// are dropped, and ".." pops the previous segment. An empty result refers to
// the root itself.
func ResolvePath(path string) (string, error) {
	p := strings.TrimSpace(path)
	p = strings.TrimLeft(p, "/")

	var parts []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", ErrBadPath
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/"), nil
}

// ContainerPath maps a resolved relative path to its absolute location inside
// the container.
func ContainerPath(rel string) string {
	if rel == "" {
		return Root
	}
	return Root + "/" + rel
}
