package baristagrpc

import (
	"context"
	"testing"

	"github.com/keksclan/goBarista/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type stubAuthorizer struct {
	claims    authz.Claims
	err       error
	gotHeader string
	calls     int
}

func (s *stubAuthorizer) Authorize(_ context.Context, header, _ string) (authz.Claims, error) {
	s.calls++
	s.gotHeader = header
	return s.claims, s.err
}

var perms = Permissions{"/barista.v1.Drinks/Delete": "delete:drinks"}

func withAuth(header string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", header))
}

func TestUnaryInterceptor(t *testing.T) {
	stub := &stubAuthorizer{claims: authz.Claims{"sub": "auth0|barista"}}
	icpt := UnaryServerInterceptor(stub, perms)

	var got authz.Claims
	handler := func(ctx context.Context, _ any) (any, error) {
		got = ClaimsFromContext(ctx)
		return "ok", nil
	}

	resp, err := icpt(withAuth("Bearer tok"), nil, &grpc.UnaryServerInfo{FullMethod: "/barista.v1.Drinks/Delete"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "auth0|barista", got.Subject())
	assert.Equal(t, "Bearer tok", stub.gotHeader)
}

func TestUnaryInterceptorUnlistedMethodPassesThrough(t *testing.T) {
	stub := &stubAuthorizer{err: authz.ErrMissingHeader}
	icpt := UnaryServerInterceptor(stub, perms)

	_, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/barista.v1.Drinks/List"},
		func(context.Context, any) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Zero(t, stub.calls)
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{authz.ErrMissingHeader, codes.Unauthenticated},
		{authz.ErrTokenExpired, codes.Unauthenticated},
		{authz.ErrPermissionDenied, codes.PermissionDenied},
		{authz.ErrPermissionsClaimMissing, codes.InvalidArgument},
		{authz.ErrKeyFetchTimeout, codes.Unavailable},
		{assert.AnError, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			icpt := UnaryServerInterceptor(&stubAuthorizer{err: tt.err}, perms)
			_, err := icpt(withAuth("Bearer tok"), nil, &grpc.UnaryServerInfo{FullMethod: "/barista.v1.Drinks/Delete"},
				func(context.Context, any) (any, error) {
					t.Fatal("handler must not run")
					return nil, nil
				})
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	stub := &stubAuthorizer{claims: authz.Claims{"sub": "auth0|barista"}}
	icpt := StreamServerInterceptor(stub, Permissions{"/barista.v1.Drinks/Watch": "get:drinks-detail"})

	var got authz.Claims
	err := icpt(nil, &fakeStream{ctx: withAuth("Bearer tok")}, &grpc.StreamServerInfo{FullMethod: "/barista.v1.Drinks/Watch"},
		func(_ any, ss grpc.ServerStream) error {
			got = ClaimsFromContext(ss.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "auth0|barista", got.Subject())
}

func TestStreamInterceptorWithoutMetadata(t *testing.T) {
	stub := &stubAuthorizer{err: authz.ErrMissingHeader}
	icpt := StreamServerInterceptor(stub, Permissions{"/barista.v1.Drinks/Watch": "get:drinks-detail"})

	err := icpt(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/barista.v1.Drinks/Watch"},
		func(any, grpc.ServerStream) error { return nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Empty(t, stub.gotHeader)
}
