// Package recovery turns panics in RPC handlers into Internal errors so a
// single faulty request cannot take the process down.
package recovery

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PanicError carries a recovered panic value and the stack it was raised on
type PanicError struct {
	Method string
	Value  interface{}
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Method, e.Value)
}

// RecoveryConfig configures recovery behavior
type RecoveryConfig struct {
	// Logger receives one error entry per recovered panic
	Logger *zap.Logger

	// OnPanic is called after a panic has been recovered and logged
	OnPanic func(*PanicError)
}

// Handler recovers panics and reports them as Internal status errors
type Handler struct {
	logger  *zap.Logger
	onPanic func(*PanicError)
	panics  atomic.Int64
}

// NewHandler creates a panic handler
func NewHandler(config RecoveryConfig) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:  logger.With(zap.String("component", "recovery")),
		onPanic: config.OnPanic,
	}
}

// Panics returns the number of panics recovered so far
func (h *Handler) Panics() int64 {
	return h.panics.Load()
}

// Execute runs fn and converts a panic into an error. Clients only see a
// generic message; the value and stack are logged.
func (h *Handler) Execute(method string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{Method: method, Value: r, Stack: debug.Stack()}
			h.panics.Add(1)
			h.logger.Error("Recovered from panic",
				zap.String("method", method),
				zap.Any("panic", r),
				zap.ByteString("stack", perr.Stack))
			if h.onPanic != nil {
				h.onPanic(perr)
			}
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return fn()
}

// UnaryServerInterceptor recovers panics in unary handlers
func (h *Handler) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		err = h.Execute(info.FullMethod, func() error {
			var herr error
			resp, herr = handler(ctx, req)
			return herr
		})
		return resp, err
	}
}

// StreamServerInterceptor recovers panics in streaming handlers
func (h *Handler) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return h.Execute(info.FullMethod, func() error {
			return handler(srv, ss)
		})
	}
}
