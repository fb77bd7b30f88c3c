package connector

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies connector failures for retry decisions.
type ErrorKind string

const (
	// ErrKindTransient marks failures worth retrying: network resets,
	// timeouts, resource temporarily unavailable.
	ErrKindTransient ErrorKind = "TRANSIENT"

	// ErrKindPermanent marks failures that will not succeed on retry:
	// schema mismatches, validation rejects, authentication failures.
	ErrKindPermanent ErrorKind = "PERMANENT"
)

// Error is a classified connector failure.
//
// Resource identifies the external system, Op the attempted operation.
// The wrapped cause is preserved for diagnostics; its text is surfaced
// verbatim in propagation and reconciliation statuses.
type Error struct {
	Kind     ErrorKind
	Resource string
	Op       string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Resource, e.Op, e.Err)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable connector failure.
func Transient(resource, op string, err error) *Error {
	return &Error{Kind: ErrKindTransient, Resource: resource, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable connector failure.
func Permanent(resource, op string, err error) *Error {
	return &Error{Kind: ErrKindPermanent, Resource: resource, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable connector failure.
// Context deadline expiry counts as transient: a slow resource may recover.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == ErrKindTransient
	}
	return false
}

// IsPermanent reports whether err is a non-retryable connector failure.
func IsPermanent(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == ErrKindPermanent
	}
	return false
}

// ErrNotFound is returned by Update/Delete when the target object does not
// exist on the resource.
var ErrNotFound = errors.New("object not found on resource")
