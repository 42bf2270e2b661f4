package grpc

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pb "github.com/dmitrijs2005/permitauth/internal/proto"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

type ctxKey string

const (
	identityKey    ctxKey = "identity"
	accessTokenKey ctxKey = "accessToken"
)

// authorizationHeader is the metadata key carrying "Bearer <access token>".
const authorizationHeader = "authorization"

type tokenMode int

const (
	// tokenVerified requires a valid, unexpired, non-blacklisted token.
	tokenVerified tokenMode = iota + 1
	// tokenPresent only requires a token; Logout accepts expired ones.
	tokenPresent
)

var protectedMethods = map[string]tokenMode{
	pb.AuthService_Logout_FullMethodName:            tokenPresent,
	pb.AuthService_Verify_FullMethodName:            tokenVerified,
	pb.AuthService_ListSessions_FullMethodName:      tokenVerified,
	pb.AuthService_RevokeSession_FullMethodName:     tokenVerified,
	pb.AuthService_RevokeAllSessions_FullMethodName: tokenVerified,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	mode, ok := protectedMethods[info.FullMethod]
	if !ok {
		return handler(ctx, req)
	}

	accessToken := bearerToken(ctx)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	ctx = context.WithValue(ctx, accessTokenKey, accessToken)

	if mode == tokenVerified {
		id, err := s.auth.Verify(ctx, accessToken)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		ctx = context.WithValue(ctx, identityKey, id)
	}

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return ""
	}
	v := strings.TrimSpace(values[0])
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}

// IdentityFromContext returns the caller verified by the interceptor.
func IdentityFromContext(ctx context.Context) (*services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*services.Identity)
	return id, ok && id != nil
}

func accessTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey).(string)
	return v
}
