package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	pb "github.com/dmitrijs2005/permitauth/internal/proto"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

func startBufServer(t *testing.T) (pb.AuthServiceClient, *grpc.ClientConn) {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.LoginFailureThreshold = 2

	store := memory.NewStore()
	svc, err := services.NewAuthService(store, store, cfg, timex.SystemClock{}, logging.Nop{})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewGRPCServer("bufnet", logging.Nop{}, svc).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return pb.NewAuthServiceClient(conn), conn
}

func bearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestServer_EndToEnd(t *testing.T) {
	client, _ := startBufServer(t)
	ctx := context.Background()

	_, err := client.Register(ctx, &pb.RegisterRequest{Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = client.Register(ctx, &pb.RegisterRequest{Email: "alice@example.com", Password: "correct horse"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	login, err := client.Login(ctx, &pb.LoginRequest{
		Email: "alice@example.com", Password: "correct horse", DeviceLabel: "cli",
	})
	require.NoError(t, err)
	access := login.GetTokens().GetAccessToken()
	refresh := login.GetTokens().GetRefreshToken()
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	who, err := client.Verify(bearer(access), &pb.VerifyRequest{})
	require.NoError(t, err)
	assert.Equal(t, login.GetUserId(), who.GetUserId())
	assert.Equal(t, login.GetTokens().GetSessionId(), who.GetSessionId())

	list, err := client.ListSessions(bearer(access), &pb.ListSessionsRequest{})
	require.NoError(t, err)
	require.Len(t, list.GetSessions(), 1)
	first := list.GetSessions()[0]
	assert.Equal(t, "cli", first.GetDeviceLabel())
	assert.True(t, first.GetCurrent())
	assert.True(t, first.GetIsActive())

	rotated, err := client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: refresh})
	require.NoError(t, err)
	assert.NotEqual(t, refresh, rotated.GetTokens().GetRefreshToken())

	_, err = client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: refresh})
	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "theft_detected", st.Message())

	newAccess := rotated.GetTokens().GetAccessToken()
	_, err = client.Logout(bearer(newAccess), &pb.LogoutRequest{Scope: "current_device"})
	require.NoError(t, err)
	_, err = client.Logout(bearer(newAccess), &pb.LogoutRequest{})
	require.NoError(t, err)

	_, err = client.Verify(bearer(newAccess), &pb.VerifyRequest{})
	st = status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "revoked", st.Message())

	_, err = client.Verify(ctx, &pb.VerifyRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_RateLimitTrailer(t *testing.T) {
	client, _ := startBufServer(t)
	ctx := context.Background()

	_, err := client.Register(ctx, &pb.RegisterRequest{Email: "bob@example.com", Password: "correct horse"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = client.Login(ctx, &pb.LoginRequest{Email: "bob@example.com", Password: "wrong password"})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	}

	var trailer metadata.MD
	_, err = client.Login(ctx, &pb.LoginRequest{Email: "bob@example.com", Password: "correct horse"},
		grpc.Trailer(&trailer))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	require.Len(t, trailer.Get(retryAfterTrailer), 1)
	assert.Equal(t, "900", trailer.Get(retryAfterTrailer)[0])
}

func TestServer_Health(t *testing.T) {
	_, conn := startBufServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: pb.AuthService_ServiceDesc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, &fakeAuth{})
	require.Error(t, srv.Run(context.Background()))
}
