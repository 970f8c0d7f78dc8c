package server

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	gwerrors "github.com/objectfs/gateway/pkg/errors"
)

var kindCodes = map[gwerrors.Kind]codes.Code{
	gwerrors.KindNotFound:           codes.NotFound,
	gwerrors.KindPermissionDenied:   codes.PermissionDenied,
	gwerrors.KindAlreadyExists:      codes.AlreadyExists,
	gwerrors.KindFailedPrecondition: codes.FailedPrecondition,
	gwerrors.KindUnsupported:        codes.Unimplemented,
	gwerrors.KindUnauthenticated:    codes.Unauthenticated,
	gwerrors.KindInvalidArgument:    codes.InvalidArgument,
	gwerrors.KindInternal:           codes.Internal,
}

// codeOf maps err to the status code reported to clients
func codeOf(err error) codes.Code {
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return kindCodes[gwerrors.KindOf(err)]
}

// toStatus converts a driver error into a gRPC status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

// fail logs err at the severity its kind deserves and returns it as a
// status error. Only internal failures are logged with their cause.
func (s *storageService) fail(op, path string, err error) error {
	code := codeOf(err)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("path", path),
		zap.String("code", code.String()),
	}

	switch {
	case code == codes.Canceled || code == codes.DeadlineExceeded:
		s.logger.Debug("Request abandoned by client", fields...)
	case code == codes.Internal:
		s.logger.Error("Operation failed", append(fields, zap.Error(err))...)
	case gwerrors.KindOf(err).Expected():
		s.logger.Debug("Operation rejected", append(fields, zap.String("reason", err.Error()))...)
	default:
		s.logger.Warn("Operation rejected", append(fields, zap.String("reason", err.Error()))...)
	}

	return toStatus(err)
}

// isDisconnect reports whether a send failed because the client went away
// rather than because of a server-side fault.
func isDisconnect(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
