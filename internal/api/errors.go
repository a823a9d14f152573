package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nomomon/sandbox-api/internal/auth"
	"github.com/nomomon/sandbox-api/internal/command"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/ratelimit"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

// Error codes returned in API responses
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCommandForbidden   = "COMMAND_FORBIDDEN"
	ErrCodeBadPath            = "BAD_PATH"
	ErrCodePathNotFound       = "PATH_NOT_FOUND"
	ErrCodePathIsDirectory    = "PATH_IS_DIRECTORY"
	ErrCodeFileTooLarge       = "FILE_TOO_LARGE"
	ErrCodeRuntimeUnavailable = "RUNTIME_UNAVAILABLE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string                 `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Classify maps a core error to its code and HTTP status. Unrecognized
// errors fall through to INTERNAL_ERROR. The tool-call facade shares this
// mapping so both surfaces report the same taxonomy.
func Classify(err error) (string, int) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return ErrCodeUnauthorized, http.StatusUnauthorized
	case errors.Is(err, orchestrator.ErrForbidden):
		return ErrCodeForbidden, http.StatusForbidden
	case errors.Is(err, ratelimit.ErrLimited):
		return ErrCodeRateLimited, http.StatusTooManyRequests
	case errors.Is(err, command.ErrNotAllowed):
		return ErrCodeCommandForbidden, http.StatusBadRequest
	case errors.Is(err, workspace.ErrBadPath):
		return ErrCodeBadPath, http.StatusBadRequest
	case errors.Is(err, workspace.ErrNotFound):
		return ErrCodePathNotFound, http.StatusNotFound
	case errors.Is(err, workspace.ErrIsDirectory):
		return ErrCodePathIsDirectory, http.StatusBadRequest
	case errors.Is(err, workspace.ErrTooLarge):
		return ErrCodeFileTooLarge, http.StatusBadRequest
	case errors.Is(err, workspace.ErrRootDelete):
		return ErrCodeBadPath, http.StatusBadRequest
	case errors.Is(err, workspace.ErrOpFailed):
		return ErrCodeBadPath, http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrRuntime):
		return ErrCodeRuntimeUnavailable, http.StatusBadGateway
	default:
		return ErrCodeInternalError, http.StatusInternalServerError
	}
}

// writeAPIError writes a structured error response with appropriate HTTP status
func writeAPIError(w http.ResponseWriter, err error) {
	code, status := Classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	})
}
