// Package baristagrpc provides gRPC interceptors that enforce a permission
// per full method name.
//
// Methods missing from the permission map are passed through untouched. For
// listed methods the "authorization" metadata value is verified and the
// claims are injected into the handler's context.
//
// Concurrency: All exported functions are safe for concurrent use.
package baristagrpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/keksclan/goBarista/adapters/common"
	"github.com/keksclan/goBarista/authz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey struct{}

// ClaimsFromContext returns the claims injected by the interceptor, or nil.
func ClaimsFromContext(ctx context.Context) authz.Claims {
	v, _ := ctx.Value(contextKey{}).(authz.Claims)
	return v
}

// Permissions maps a full method name ("/pkg.Service/Method") to the
// permission it requires.
type Permissions map[string]string

func UnaryServerInterceptor(a common.Authorizer, perms Permissions) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		perm, ok := perms[info.FullMethod]
		if !ok {
			return handler(ctx, req)
		}
		newCtx, err := authorize(ctx, a, perm)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

func StreamServerInterceptor(a common.Authorizer, perms Permissions) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		perm, ok := perms[info.FullMethod]
		if !ok {
			return handler(srv, ss)
		}
		newCtx, err := authorize(ss.Context(), a, perm)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: newCtx})
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

func authorize(ctx context.Context, a common.Authorizer, perm string) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
	}
	claims, err := a.Authorize(ctx, header, perm)
	if err != nil {
		return ctx, toStatus(err)
	}
	return context.WithValue(ctx, contextKey{}, claims), nil
}

func toStatus(err error) error {
	var ae *authz.Error
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, "internal error")
	}
	code := codes.Unauthenticated
	switch ae.Status {
	case http.StatusForbidden:
		code = codes.PermissionDenied
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	}
	return status.Error(code, string(ae.Kind)+": "+ae.Description)
}
