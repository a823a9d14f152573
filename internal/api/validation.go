package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nomomon/sandbox-api/internal/audit"
)

const (
	maxSessionIDLength  = 256
	maxCommandLength    = 32000
	maxWorkingDirLength = 512
	maxHistoryLimit     = 500
)

var uploadNamePattern = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// ValidateSessionID checks length bounds for client-supplied session ids.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("session_id must not exceed %d characters", maxSessionIDLength)
	}
	return nil
}

// validateExecuteRequest validates command execution parameters. The timeout
// is not validated here; the core clamps it.
func validateExecuteRequest(req executeRequest) error {
	if req.Command == "" {
		return fmt.Errorf("command is required")
	}
	if len(req.Command) > maxCommandLength {
		return fmt.Errorf("command must not exceed %d characters", maxCommandLength)
	}
	if err := ValidateSessionID(req.SessionID); err != nil {
		return err
	}
	if len(req.WorkingDir) > maxWorkingDirLength {
		return fmt.Errorf("working_dir must not exceed %d characters", maxWorkingDirLength)
	}
	return nil
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return audit.DefaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if limit < 1 || limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxHistoryLimit)
	}
	return limit, nil
}

// sanitizeUploadFilename reduces a client filename to a safe basename.
// Anything outside [A-Za-z0-9_.-] becomes an underscore; a name with nothing
// left falls back to "upload".
func sanitizeUploadFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	safe := uploadNamePattern.ReplaceAllString(name, "_")
	if safe == "" {
		return "upload"
	}
	return safe
}
