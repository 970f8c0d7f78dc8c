package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	err := New(KindFailedPrecondition, "directory %q not empty", "a/b")
	if err.Kind != KindFailedPrecondition {
		t.Errorf("Kind = %v, want %v", err.Kind, KindFailedPrecondition)
	}
	if err.Message != `directory "a/b" not empty` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestGatewayError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *GatewayError
		want string
	}{
		{
			name: "message only",
			err:  New(KindInternal, "boom"),
			want: "boom",
		},
		{
			name: "op and path",
			err:  NotFound("docs/a.txt").WithOp("stat"),
			want: "stat docs/a.txt: no such file or directory",
		},
		{
			name: "op without path",
			err:  Unsupported("write", "append is not supported"),
			want: "write: append is not supported",
		},
		{
			name: "with cause",
			err:  New(KindInternal, "copy failed").WithCause(fmt.Errorf("network down")),
			want: "copy failed: network down",
		},
		{
			name: "kind fallback",
			err:  &GatewayError{Kind: KindUnauthenticated},
			want: "unauthenticated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGatewayError_Is(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", AlreadyExists("x"))
	if !stderr.Is(err, ErrAlreadyExists) {
		t.Error("expected wrapped error to match ErrAlreadyExists")
	}
	if stderr.Is(err, ErrNotFound) {
		t.Error("did not expect match with ErrNotFound")
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", PermissionDenied("../x", "path escapes root"), KindPermissionDenied},
		{"wrapped classified", fmt.Errorf("ctx: %w", NotFound("a")), KindNotFound},
		{"not exist", &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, KindNotFound},
		{"exist", &os.PathError{Op: "open", Path: "/x", Err: syscall.EEXIST}, KindAlreadyExists},
		{"permission", fs.ErrPermission, KindPermissionDenied},
		{"not empty", &os.PathError{Op: "remove", Path: "/x", Err: syscall.ENOTEMPTY}, KindFailedPrecondition},
		{"not empty rename", &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: syscall.ENOTEMPTY}, KindFailedPrecondition},
		{"not dir", &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOTDIR}, KindFailedPrecondition},
		{"is dir", &os.PathError{Op: "open", Path: "/x", Err: syscall.EISDIR}, KindFailedPrecondition},
		{"unknown", fmt.Errorf("something odd"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("nil stays nil", func(t *testing.T) {
		if Wrap(nil, "stat", "a") != nil {
			t.Error("Wrap(nil) should be nil")
		}
	})

	t.Run("os error is classified", func(t *testing.T) {
		cause := &os.PathError{Op: "remove", Path: "/root/a", Err: syscall.ENOTEMPTY}
		err := Wrap(cause, "remove", "a")

		var gwErr *GatewayError
		if !stderr.As(err, &gwErr) {
			t.Fatalf("expected GatewayError, got %T", err)
		}
		if gwErr.Kind != KindFailedPrecondition {
			t.Errorf("Kind = %v, want %v", gwErr.Kind, KindFailedPrecondition)
		}
		if gwErr.Message != "directory not empty" {
			t.Errorf("Message = %q", gwErr.Message)
		}
		if !stderr.Is(err, syscall.ENOTEMPTY) {
			t.Error("cause should remain reachable")
		}
	})

	t.Run("classified error keeps kind and gains context", func(t *testing.T) {
		orig := New(KindAlreadyExists, "exists")
		err := Wrap(orig, "rename", "b")
		if err != error(orig) {
			t.Error("expected the same error value back")
		}
		if orig.Op != "rename" || orig.Path != "b" {
			t.Errorf("context not attached: op=%q path=%q", orig.Op, orig.Path)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	if !IsRetryable(fmt.Errorf("connection reset")) {
		t.Error("unclassified errors should be retryable")
	}
	if IsRetryable(NotFound("a")) {
		t.Error("NotFound should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("context cancellation should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestKind_Expected(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindNotFound, KindAlreadyExists, KindFailedPrecondition} {
		if !k.Expected() {
			t.Errorf("%v should be expected", k)
		}
	}
	for _, k := range []Kind{KindInternal, KindPermissionDenied, KindUnauthenticated} {
		if k.Expected() {
			t.Errorf("%v should not be expected", k)
		}
	}
}
