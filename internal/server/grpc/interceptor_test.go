package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	pb "github.com/dmitrijs2005/permitauth/internal/proto"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

func newTestServer(auth authService) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop{}, auth)
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestInterceptor_UnprotectedAllowsWithoutToken(t *testing.T) {
	s := newTestServer(&fakeAuth{})

	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Login_FullMethodName}
	called := false
	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer(&fakeAuth{})

	for _, m := range []string{
		pb.AuthService_Verify_FullMethodName,
		pb.AuthService_ListSessions_FullMethodName,
		pb.AuthService_Logout_FullMethodName,
		pb.AuthService_RevokeSession_FullMethodName,
		pb.AuthService_RevokeAllSessions_FullMethodName,
	} {
		info := &grpc.UnaryServerInfo{FullMethod: m}
		_, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler should not be called when token missing")
			return nil, nil
		})
		assert.Equal(t, codes.Unauthenticated, status.Code(err), m)
	}
}

func TestInterceptor_VerifiedIdentityInContext(t *testing.T) {
	id := &services.Identity{UserID: "u1", Role: "user", SessionID: "f1"}
	s := newTestServer(&fakeAuth{identity: id})

	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_ListSessions_FullMethodName}
	_, err := s.accessTokenInterceptor(withToken("good"), nil, info, func(ctx context.Context, req any) (any, error) {
		got, ok := IdentityFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, id, got)
		assert.Equal(t, "good", accessTokenFromContext(ctx))
		return nil, nil
	})
	require.NoError(t, err)

	_, err = s.accessTokenInterceptor(withToken("bad"), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called for an invalid token")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestInterceptor_LogoutSkipsVerification(t *testing.T) {
	s := newTestServer(&fakeAuth{verifyErr: common.ErrTokenExpired})

	info := &grpc.UnaryServerInfo{FullMethod: pb.AuthService_Logout_FullMethodName}
	called := false
	_, err := s.accessTokenInterceptor(withToken("expired"), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		_, ok := IdentityFromContext(ctx)
		assert.False(t, ok)
		assert.Equal(t, "expired", accessTokenFromContext(ctx))
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{"no metadata", nil, ""},
		{"bearer prefix", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"lowercase prefix", metadata.Pairs("authorization", "bearer  abc "), "abc"},
		{"raw token", metadata.Pairs("authorization", "abc"), "abc"},
		{"empty", metadata.Pairs("authorization", ""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			assert.Equal(t, tt.want, bearerToken(ctx))
		})
	}
}
