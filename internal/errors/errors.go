package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a snipvault error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrCaptureTimeout   ErrorCode = "CAPTURE_TIMEOUT"   // 408
	ErrCaptureBusy      ErrorCode = "CAPTURE_BUSY"      // 409
	ErrConflict         ErrorCode = "CONFLICT"          // 409, collection changed underneath a write
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrRelocationFailed ErrorCode = "RELOCATION_FAILED" // 500, retry-safe
	ErrDeletionFailed   ErrorCode = "DELETION_FAILED"   // 500, record preserved
	ErrStoreCorruption  ErrorCode = "STORE_CORRUPTION"  // 500, logged; Load treats as empty
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// VaultError represents a structured error with code, status, and details.
type VaultError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the underlying low-level error, kept for logs and errors.Is chains.
	// It is never serialized to callers.
	cause error
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *VaultError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid or missing input.
func NewInvalidRequest(msg string) *VaultError {
	return &VaultError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind, identifier string) *VaultError {
	return &VaultError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing file on disk.
func NewFileNotFound(path string) *VaultError {
	return &VaultError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"kind": "file", "identifier": path},
	}
}

// NewCaptureTimeout creates a 408 error when no fresh image appeared before the deadline.
func NewCaptureTimeout(deadline string) *VaultError {
	return &VaultError{
		Code:    ErrCaptureTimeout,
		Status:  408,
		Message: "no new capture detected; please try again",
		Details: map[string]any{"deadline": deadline},
	}
}

// NewCaptureBusy creates a 409 error when another capture acquisition is running.
func NewCaptureBusy() *VaultError {
	return &VaultError{
		Code:    ErrCaptureBusy,
		Status:  409,
		Message: "another capture is already in progress",
	}
}

// NewConflict creates a 409 error when a collection changed between the
// read and the write of one update. Nothing was written.
func NewConflict(collection string) *VaultError {
	return &VaultError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("collection %q was modified concurrently; retry the operation", collection),
		Details: map[string]any{"collection": collection},
	}
}

// NewCancelled creates a 499 error when the caller abandoned the operation.
func NewCancelled(operation string) *VaultError {
	return &VaultError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewRelocationFailed creates a 500 error when a detected capture could not be moved.
func NewRelocationFailed(source string, err error) *VaultError {
	return &VaultError{
		Code:    ErrRelocationFailed,
		Status:  500,
		Message: fmt.Sprintf("failed to move capture: %v", err),
		Details: map[string]any{"source": source},
		cause:   err,
	}
}

// NewDeletionFailed creates a 500 error when on-disk cleanup failed.
// The metadata record is always left intact when this is returned.
func NewDeletionFailed(kind, identifier string, err error) *VaultError {
	return &VaultError{
		Code:    ErrDeletionFailed,
		Status:  500,
		Message: fmt.Sprintf("failed to remove %s files: %v", kind, err),
		Details: map[string]any{"kind": kind, "identifier": identifier},
		cause:   err,
	}
}

// NewStoreCorruption creates an error describing an unreadable collection.
func NewStoreCorruption(collection string, err error) *VaultError {
	return &VaultError{
		Code:    ErrStoreCorruption,
		Status:  500,
		Message: fmt.Sprintf("collection %q is unreadable: %v", collection, err),
		Details: map[string]any{"collection": collection},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VaultError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VaultError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a VaultError with the given code.
func Is(err error, code ErrorCode) bool {
	var vErr *VaultError
	if stderrors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}

// StatusOf returns the status carried by err, or 500 for foreign errors.
func StatusOf(err error) int {
	var vErr *VaultError
	if stderrors.As(err, &vErr) {
		return vErr.Status
	}
	return 500
}
