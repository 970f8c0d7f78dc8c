package server

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/objectfs/gateway/pkg/api"
)

// Methods callable without a credential
var publicMethods = map[string]bool{
	api.MethodHealth:  true,
	api.MethodInfoAll: true,
}

// authenticator checks bearer credentials against one shared secret. An
// empty secret disables the check.
type authenticator struct {
	token []byte
}

func newAuthenticator(token string) *authenticator {
	return &authenticator{token: []byte(token)}
}

func (a *authenticator) check(ctx context.Context, fullMethod string) error {
	if len(a.token) == 0 || publicMethods[fullMethod] {
		return nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}

	parts := strings.Fields(values[0])
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return status.Error(codes.Unauthenticated, "invalid authorization header format")
	}
	if subtle.ConstantTimeCompare([]byte(parts[1]), a.token) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func (a *authenticator) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := a.check(ctx, info.FullMethod); err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (a *authenticator) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := a.check(ss.Context(), info.FullMethod); err != nil {
		return err
	}
	return handler(srv, ss)
}
