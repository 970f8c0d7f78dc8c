// Package errors provides the gateway's error taxonomy: a small set of kinds
// every storage, cache and protocol failure is reduced to before it reaches a
// client.
package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"time"
)

// Kind classifies an error into one of the reported categories.
type Kind int

// Error kinds. The zero value is Internal so unclassified errors never leak
// as something more specific than they are.
const (
	KindInternal Kind = iota
	KindNotFound
	KindPermissionDenied
	KindAlreadyExists
	KindFailedPrecondition
	KindUnsupported
	KindUnauthenticated
	KindInvalidArgument
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAlreadyExists:
		return "already_exists"
	case KindFailedPrecondition:
		return "failed_precondition"
	case KindUnsupported:
		return "unsupported"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Expected reports whether errors of this kind are part of normal client
// interaction and should be logged at low severity.
func (k Kind) Expected() bool {
	switch k {
	case KindNotFound, KindAlreadyExists, KindFailedPrecondition:
		return true
	default:
		return false
	}
}

// GatewayError is a classified error with the operation and path it concerns.
type GatewayError struct {
	Kind      Kind      `json:"kind"`
	Op        string    `json:"op,omitempty"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Sentinels for use with errors.Is. Matching is by kind only.
var (
	ErrNotFound           = &GatewayError{Kind: KindNotFound}
	ErrPermissionDenied   = &GatewayError{Kind: KindPermissionDenied}
	ErrAlreadyExists      = &GatewayError{Kind: KindAlreadyExists}
	ErrFailedPrecondition = &GatewayError{Kind: KindFailedPrecondition}
	ErrUnsupported        = &GatewayError{Kind: KindUnsupported}
	ErrUnauthenticated    = &GatewayError{Kind: KindUnauthenticated}
	ErrInvalidArgument    = &GatewayError{Kind: KindInvalidArgument}
	ErrInternal           = &GatewayError{Kind: KindInternal}
)

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NotFound reports an absent target.
func NotFound(path string) *GatewayError {
	return New(KindNotFound, "no such file or directory").WithPath(path)
}

// PermissionDenied reports a traversal attempt or a backend access denial.
func PermissionDenied(path, reason string) *GatewayError {
	return New(KindPermissionDenied, "%s", reason).WithPath(path)
}

// AlreadyExists reports a disallowed create, rename or write collision.
func AlreadyExists(path string) *GatewayError {
	return New(KindAlreadyExists, "destination already exists").WithPath(path)
}

// FailedPrecondition reports a type mismatch or non-empty directory.
func FailedPrecondition(path, reason string) *GatewayError {
	return New(KindFailedPrecondition, "%s", reason).WithPath(path)
}

// Unsupported reports an operation the backend cannot perform.
func Unsupported(op, reason string) *GatewayError {
	return New(KindUnsupported, "%s", reason).WithOp(op)
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	var b strings.Builder
	switch {
	case e.Op != "" && e.Path != "":
		b.WriteString(e.Op + " " + e.Path + ": ")
	case e.Op != "":
		b.WriteString(e.Op + ": ")
	case e.Path != "":
		b.WriteString(e.Path + ": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is matches any GatewayError of the same kind.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithOp sets the operation name
func (e *GatewayError) WithOp(op string) *GatewayError {
	e.Op = op
	return e
}

// WithPath sets the relative path the error concerns
func (e *GatewayError) WithPath(path string) *GatewayError {
	e.Path = path
	return e
}

// WithCause sets the underlying cause
func (e *GatewayError) WithCause(cause error) *GatewayError {
	e.Cause = cause
	return e
}

// KindOf classifies an arbitrary error. Classified errors keep their kind;
// filesystem errors are mapped by their errno; anything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var gwErr *GatewayError
	if stderr.As(err, &gwErr) {
		return gwErr.Kind
	}

	// ENOTEMPTY also matches fs.ErrExist, so errnos go first.
	switch {
	case stderr.Is(err, syscall.ENOTEMPTY),
		stderr.Is(err, syscall.ENOTDIR),
		stderr.Is(err, syscall.EISDIR):
		return KindFailedPrecondition
	case stderr.Is(err, fs.ErrNotExist):
		return KindNotFound
	case stderr.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case stderr.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	}

	return KindInternal
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap classifies err and attaches op and path. A nil error stays nil and an
// already classified error only gains the missing context.
func Wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}

	var gwErr *GatewayError
	if stderr.As(err, &gwErr) {
		if gwErr.Op == "" {
			gwErr.Op = op
		}
		if gwErr.Path == "" {
			gwErr.Path = path
		}
		return err
	}

	kind := KindOf(err)
	return &GatewayError{
		Kind:      kind,
		Op:        op,
		Path:      path,
		Message:   describe(err, kind),
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// IsRetryable reports whether an operation failing with err may succeed on a
// later attempt. Only unclassified backend failures qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err) == KindInternal
}

func describe(err error, kind Kind) string {
	switch {
	case stderr.Is(err, syscall.ENOTEMPTY):
		return "directory not empty"
	case stderr.Is(err, syscall.ENOTDIR):
		return "not a directory"
	case stderr.Is(err, syscall.EISDIR):
		return "is a directory"
	}
	switch kind {
	case KindNotFound:
		return "no such file or directory"
	case KindAlreadyExists:
		return "already exists"
	case KindPermissionDenied:
		return "permission denied"
	}
	return "operation failed"
}
