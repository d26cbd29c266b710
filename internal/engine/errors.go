package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents a failure while serving a query or refresh.
//
// Runtime errors include:
//   - Fetch failure: the stay reader returned an error; no partial result
//   - Refresh failure: one or more views could not be refetched
//   - Invalid query: the requested window or range is malformed
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Op is the engine operation that failed (grid, availability, ...).
	Op string

	// Message is a human-readable description.
	Message string

	// View identifies the cached view involved, if any.
	View string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeFetchFailed indicates the stay reader failed.
	ErrCodeFetchFailed RuntimeErrorCode = "FETCH_FAILED"

	// ErrCodeRefreshFailed indicates a refresh left some views stale.
	ErrCodeRefreshFailed RuntimeErrorCode = "REFRESH_FAILED"

	// ErrCodeInvalidQuery indicates a malformed window or range.
	ErrCodeInvalidQuery RuntimeErrorCode = "INVALID_QUERY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.View != "" {
		msg += " (view=" + e.View + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsFetchError returns true if the error is a fetch failure.
// Uses errors.As to handle wrapped errors.
func IsFetchError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeFetchFailed
	}
	return false
}

// IsInvalidQuery returns true if the error is a malformed query.
func IsInvalidQuery(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidQuery
	}
	return false
}

// NewFetchError creates a RuntimeError for a failed read.
func NewFetchError(op, view string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeFetchFailed,
		Op:      op,
		Message: "could not load stays",
		View:    view,
		Err:     err,
	}
}

// NewInvalidQueryError creates a RuntimeError for a malformed query.
func NewInvalidQueryError(op string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidQuery,
		Op:      op,
		Message: "invalid query",
		Err:     err,
	}
}
