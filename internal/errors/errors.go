// Package errors classifies the failures that flow through the sync, migration
// and storage layers so callers can tell retryable conditions from terminal ones.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	// Retryable: the remote could not be reached or did not answer in time.
	ErrNetwork ErrorCode = "NETWORK_ERROR"
	ErrTimeout ErrorCode = "TIMEOUT"

	// Caller errors, never queued.
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"

	// Credential problems; refresh is attempted before this surfaces.
	ErrAuth ErrorCode = "AUTH_ERROR"

	// Sync and queue outcomes
	ErrConflict         ErrorCode = "CONFLICT"
	ErrSyncInProgress   ErrorCode = "SYNC_IN_PROGRESS"
	ErrUnreachable      ErrorCode = "UNREACHABLE"
	ErrPermanentFailure ErrorCode = "PERMANENT_FAILURE"

	// Local storage
	ErrQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	ErrCancelled ErrorCode = "CANCELLED"
	ErrInternal  ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsRetryable reports whether err is worth retrying later: network and
// timeout failures are, everything else is not.
func IsRetryable(err error) bool {
	return Is(err, ErrNetwork) || Is(err, ErrTimeout)
}
