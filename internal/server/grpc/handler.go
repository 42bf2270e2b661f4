package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	pb "github.com/dmitrijs2005/permitauth/internal/proto"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

func (s *GRPCServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterResponse, error) {
	if err := requireField("email", req.GetEmail()); err != nil {
		return nil, err
	}
	if err := requireField("password", req.GetPassword()); err != nil {
		return nil, err
	}

	user, err := s.auth.Register(ctx, services.RegisterRequest{
		Email:    req.GetEmail(),
		Password: req.GetPassword(),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", user.ID)
	return &pb.RegisterResponse{UserId: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.LoginResponse, error) {
	if err := requireField("email", req.GetEmail()); err != nil {
		return nil, err
	}
	if err := requireField("password", req.GetPassword()); err != nil {
		return nil, err
	}

	res, err := s.auth.Login(ctx, services.LoginRequest{
		Email:    req.GetEmail(),
		Password: req.GetPassword(),
		Device:   deviceInfo(ctx, req.GetDeviceLabel()),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.LoginResponse{UserId: res.User.ID, Tokens: toTokenPair(res.Tokens)}, nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *pb.RefreshRequest) (*pb.RefreshResponse, error) {
	if err := requireField("refresh_token", req.GetRefreshToken()); err != nil {
		return nil, err
	}

	pair, err := s.auth.Refresh(ctx, services.RefreshRequest{
		RefreshToken:   req.GetRefreshToken(),
		ExpectedUserID: req.GetExpectedUserId(),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.RefreshResponse{Tokens: toTokenPair(pair)}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *pb.LogoutRequest) (*pb.LogoutResponse, error) {
	scope, err := services.ParseLogoutScope(req.GetScope())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	if err := s.auth.Logout(ctx, accessTokenFromContext(ctx), scope); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.LogoutResponse{Status: "logged_out", Scope: string(scope)}, nil
}

func (s *GRPCServer) Verify(ctx context.Context, _ *pb.VerifyRequest) (*pb.VerifyResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	return &pb.VerifyResponse{
		UserId:    id.UserID,
		Role:      id.Role,
		Jti:       id.JTI,
		SessionId: id.SessionID,
		ExpiresAt: id.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *GRPCServer) ListSessions(ctx context.Context, _ *pb.ListSessionsRequest) (*pb.ListSessionsResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.auth.ListSessions(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &pb.ListSessionsResponse{Sessions: make([]*pb.Session, 0, len(list))}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, toSession(sess, id.SessionID))
	}
	return resp, nil
}

func (s *GRPCServer) RevokeSession(ctx context.Context, req *pb.RevokeSessionRequest) (*pb.RevokeSessionResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireField("session_id", req.GetSessionId()); err != nil {
		return nil, err
	}

	if err := s.auth.RevokeSession(ctx, id.UserID, req.GetSessionId()); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.RevokeSessionResponse{Status: "revoked"}, nil
}

func (s *GRPCServer) RevokeAllSessions(ctx context.Context, _ *pb.RevokeAllSessionsRequest) (*pb.RevokeAllSessionsResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.auth.RevokeAllSessions(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &pb.RevokeAllSessionsResponse{Status: "revoked", SessionsRevoked: n}, nil
}

func identity(ctx context.Context) (*services.Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}

func deviceInfo(ctx context.Context, label string) services.DeviceInfo {
	d := services.DeviceInfo{Label: label}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			d.IPAddress = host
		} else {
			d.IPAddress = p.Addr.String()
		}
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			d.UserAgent = ua[0]
		}
	}
	return d
}
