package grpc

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/dmitrijs2005/permitauth/internal/proto"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

// requireField rejects an empty request field with InvalidArgument.
func requireField(name, value string) error {
	if value == "" {
		return status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return nil
}

func toTokenPair(p *services.TokenPair) *pb.TokenPair {
	return &pb.TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(p.ExpiresIn.Seconds()),
		RefreshExpiresAt: p.RefreshExpiresAt.UTC().Format(time.RFC3339),
		SessionId:        p.FamilyID,
	}
}

func toSession(s models.Session, currentFamily string) *pb.Session {
	return &pb.Session{
		FamilyId:       s.FamilyID,
		DeviceLabel:    s.DeviceLabel,
		IpAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		LastActivityAt: s.LastActivityAt.UTC().Format(time.RFC3339),
		ExpiresAt:      s.ExpiresAt.UTC().Format(time.RFC3339),
		IsActive:       s.IsActive,
		Current:        s.FamilyID == currentFamily,
	}
}
