package deck

import (
	"errors"
	"fmt"
)

// ErrorType is the coarse error taxonomy surfaced to host applications.
type ErrorType string

const (
	// StatusError: the room or session is in the wrong writability or
	// lifecycle state for the operation (e.g. acting on a replay).
	StatusError ErrorType = "StatusError"

	// ResourceError: deck content, page count, preview asset or the overlay
	// anchor is unavailable.
	ResourceError ErrorType = "ResourceError"

	// RuntimeError: an invariant was violated (no active session, deck
	// referenced but never created, missing write permission).
	RuntimeError ErrorType = "RuntimeError"
)

// ErrorCode identifies the specific failure within a type.
type ErrorCode string

const (
	ErrCodeReadOnly           ErrorCode = "READ_ONLY"
	ErrCodeNotWritable        ErrorCode = "NOT_WRITABLE"
	ErrCodeReconcilePending   ErrorCode = "RECONCILE_PENDING"
	ErrCodeNoSession          ErrorCode = "NO_SESSION"
	ErrCodeDeckNotCreated     ErrorCode = "DECK_NOT_CREATED"
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"
	ErrCodeAnchorTimeout      ErrorCode = "ANCHOR_TIMEOUT"
	ErrCodeContentUnavailable ErrorCode = "CONTENT_UNAVAILABLE"
	ErrCodeSceneProvision     ErrorCode = "SCENE_PROVISION"
	ErrCodePreviewUnavailable ErrorCode = "PREVIEW_UNAVAILABLE"
	ErrCodeRenderFailed       ErrorCode = "RENDER_FAILED"
)

// Error is the structured error returned by projector operations.
type Error struct {
	Type    ErrorType
	Code    ErrorCode
	Message string

	// TaskID names the deck involved, when there is one.
	TaskID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Type, e.Code, e.Message)
	if e.TaskID != "" {
		msg += fmt.Sprintf(" (task=%s)", e.TaskID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewStatusError creates a StatusError.
func NewStatusError(code ErrorCode, message string) *Error {
	return &Error{Type: StatusError, Code: code, Message: message}
}

// NewResourceError creates a ResourceError wrapping cause.
func NewResourceError(code ErrorCode, message string, cause error) *Error {
	return &Error{Type: ResourceError, Code: code, Message: message, Err: cause}
}

// NewRuntimeError creates a RuntimeError.
func NewRuntimeError(code ErrorCode, message string) *Error {
	return &Error{Type: RuntimeError, Code: code, Message: message}
}

// WithTask returns a copy of e tagged with taskID.
func (e *Error) WithTask(taskID string) *Error {
	out := *e
	out.TaskID = taskID
	return &out
}

// TypeOf returns the taxonomy type of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func TypeOf(err error) ErrorType {
	var de *Error
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsStatusError reports whether err is a StatusError.
func IsStatusError(err error) bool { return TypeOf(err) == StatusError }

// IsResourceError reports whether err is a ResourceError.
func IsResourceError(err error) bool { return TypeOf(err) == ResourceError }

// IsRuntimeError reports whether err is a RuntimeError.
func IsRuntimeError(err error) bool { return TypeOf(err) == RuntimeError }
