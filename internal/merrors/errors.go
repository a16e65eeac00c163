// Package merrors defines the typed error kinds shared across the backup
// and restore engines, so callers can branch on failure class without
// string-matching error messages.
package merrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the purposes of retry and reporting policy.
type Kind string

const (
	NotFound          Kind = "not_found"
	AlreadyExists     Kind = "already_exists"
	TopologyMismatch  Kind = "topology_mismatch"
	IntegrityFailure  Kind = "integrity_failure"
	StaggerTimeout    Kind = "stagger_timeout"
	TransientIO       Kind = "transient_io"
	AuthError         Kind = "auth_error"
	Conflict          Kind = "conflict"
	ConfigError       Kind = "config_error"
	RemoteExecFailure Kind = "remote_exec_failure"
	Cancelled         Kind = "cancelled"
)

// Error wraps an underlying error with a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error for op/kind, wrapping err (which may be nil).
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the operation that produced err is safe to
// retry locally. Only TransientIO is retried automatically; every other
// kind surfaces to the orchestrating verb.
func IsRetryable(err error) bool {
	return Is(err, TransientIO)
}
