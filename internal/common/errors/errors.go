// Package errors defines the error taxonomy surfaced to orchestrator callers.
//
// Only pre-spawn failures are returned as errors. Once an agent process is
// running, problems show up as record state instead.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeCliUnavailable   = "CLI_UNAVAILABLE"
	ErrCodeConcurrencyLimit = "CONCURRENCY_LIMIT_EXCEEDED"
	ErrCodeSpawn            = "SPAWN_ERROR"
	ErrCodeDangerousPath    = "DANGEROUS_PATH"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// AppError carries a stable code and the HTTP status transports should map it to.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationError reports bad caller input for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// CliUnavailable reports that the agent binary could not be resolved.
func CliUnavailable(agentType, detail string) *AppError {
	return &AppError{
		Code:       ErrCodeCliUnavailable,
		Message:    fmt.Sprintf("%s CLI is not available: %s", agentType, detail),
		HTTPStatus: http.StatusFailedDependency,
	}
}

// ConcurrencyLimitExceeded reports a capacity rejection.
func ConcurrencyLimitExceeded(scope string, limit int) *AppError {
	return &AppError{
		Code:       ErrCodeConcurrencyLimit,
		Message:    fmt.Sprintf("%s limit of %d running agents reached", scope, limit),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// SpawnError wraps an OS-level failure to start the agent process.
func SpawnError(agentType string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeSpawn,
		Message:    fmt.Sprintf("failed to start %s agent", agentType),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// DangerousPath reports a refused autonomous run in a protected directory.
func DangerousPath(path string) *AppError {
	return &AppError{
		Code:       ErrCodeDangerousPath,
		Message:    fmt.Sprintf("refusing to run unattended in protected directory '%s'", path),
		HTTPStatus: http.StatusForbidden,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// InternalError wraps an unexpected failure.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap adds context to err, preserving the code of a wrapped AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}
	return InternalError(message, err)
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool       { return HasCode(err, ErrCodeValidation) }
func IsCliUnavailable(err error) bool   { return HasCode(err, ErrCodeCliUnavailable) }
func IsConcurrencyLimit(err error) bool { return HasCode(err, ErrCodeConcurrencyLimit) }
func IsSpawn(err error) bool            { return HasCode(err, ErrCodeSpawn) }
func IsDangerousPath(err error) bool    { return HasCode(err, ErrCodeDangerousPath) }

// GetHTTPStatus returns the HTTP status for err, 500 for anything not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// AsAppError converts err to an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError("internal error", err)
}
