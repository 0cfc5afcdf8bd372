package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by store operations. Callers match them with
// errors.Is.
var (
	// ErrNotAnObject reports a document whose top level is not a JSON object
	ErrNotAnObject = errors.New("document is not a JSON object")

	// ErrPathNotFound reports a tree path with a missing segment on a read
	ErrPathNotFound = errors.New("path not found")

	// ErrPathsUnsupported reports a path operation against a backend
	// without a node tree
	ErrPathsUnsupported = errors.New("path operations require the tree backend")
)

// ValidationError reports input the store refuses to process: empty search
// terms, reserved or empty document keys, nesting beyond the configured
// depth.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError from a format string
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a substrate failure verbatim. Op names the operation
// that failed; the cause is preserved for errors.Is and errors.As.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err for operation op. A nil err returns nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
