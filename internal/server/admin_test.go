package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/boardgames/wonders-server-go/internal/game"
)

const adminPassword = "hunter2"

func newAdminConn(t *testing.T, m *game.Manager, hash string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(GRPCOptions{
		Manager:           m,
		Version:           "test",
		AdminPasswordHash: hash,
		Logger:            zaptest.NewLogger(t),
	})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func adminCtx(password string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), AdminPasswordHeader, password)
}

func method(name string) string { return "/" + AdminServiceName + "/" + name }

func TestAdmin_Auth(t *testing.T) {
	hash, err := HashPassword(adminPassword)
	require.NoError(t, err)
	conn := newAdminConn(t, newTestManager(t), hash)

	tests := []struct {
		name string
		ctx  context.Context
		code codes.Code
	}{
		{"no password", context.Background(), codes.Unauthenticated},
		{"wrong password", adminCtx("nope"), codes.Unauthenticated},
		{"correct password", adminCtx(adminPassword), codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &structpb.ListValue{}
			err := conn.Invoke(tt.ctx, method("ListGames"), &emptypb.Empty{}, out)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestAdmin_NotConfigured(t *testing.T) {
	conn := newAdminConn(t, newTestManager(t), "")

	err := conn.Invoke(adminCtx(adminPassword), method("ListGames"), &emptypb.Empty{}, &structpb.ListValue{})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	// Health is not behind admin auth.
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: AdminServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAdmin_Games(t *testing.T) {
	hash, err := HashPassword(adminPassword)
	require.NoError(t, err)
	m := newTestManager(t)
	conn := newAdminConn(t, m, hash)
	ctx := adminCtx(adminPassword)

	g, err := m.CreateGame(context.Background(), "admin view", "alice", 3)
	require.NoError(t, err)

	list := &structpb.ListValue{}
	require.NoError(t, conn.Invoke(ctx, method("ListGames"), &emptypb.Empty{}, list))
	require.Len(t, list.GetValues(), 1)
	assert.Equal(t, "admin view", list.GetValues()[0].GetStructValue().GetFields()["name"].GetStringValue())

	req, err := structpb.NewStruct(map[string]interface{}{"id": g.ID})
	require.NoError(t, err)
	got := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("GetGame"), req, got))
	assert.Equal(t, "alice", got.GetFields()["creatorId"].GetStringValue())

	// A removed game is served from the store.
	m.RemoveGame(g.ID)
	got = &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("GetGame"), req, got))
	assert.Equal(t, "admin view", got.GetFields()["game"].GetStructValue().GetFields()["name"].GetStringValue())

	stored := &structpb.ListValue{}
	require.NoError(t, conn.Invoke(ctx, method("ListStoredGames"), &structpb.Struct{}, stored))
	require.Len(t, stored.GetValues(), 1)
	assert.Equal(t, g.ID, stored.GetValues()[0].GetStructValue().GetFields()["id"].GetStringValue())

	negative, err := structpb.NewStruct(map[string]interface{}{"limit": -1})
	require.NoError(t, err)
	err = conn.Invoke(ctx, method("ListStoredGames"), negative, &structpb.ListValue{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	missing, err := structpb.NewStruct(map[string]interface{}{"id": "nope"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, method("GetGame"), missing, &structpb.Struct{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = conn.Invoke(ctx, method("GetGame"), &structpb.Struct{}, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	state := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, method("GetServerState"), &emptypb.Empty{}, state))
	assert.Equal(t, "test", state.GetFields()["version"].GetStringValue())
}

func TestAdmin_RecoverGame(t *testing.T) {
	hash, err := HashPassword(adminPassword)
	require.NoError(t, err)
	m := newTestManager(t)
	conn := newAdminConn(t, m, hash)
	ctx := adminCtx(adminPassword)

	g, err := m.CreateGame(context.Background(), "healthy", "alice", 3)
	require.NoError(t, err)

	req, err := structpb.NewStruct(map[string]interface{}{"id": g.ID})
	require.NoError(t, err)
	err = conn.Invoke(ctx, method("RecoverGame"), req, &emptypb.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	missing, err := structpb.NewStruct(map[string]interface{}{"id": "nope"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, method("RecoverGame"), missing, &emptypb.Empty{})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestChainUnaryInterceptors_Order(t *testing.T) {
	var order []string
	mark := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mark("a"), mark("b"), mark("c"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			order = append(order, "handler")
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zaptest.NewLogger(t))
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Panic"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			panic("boom")
		})
	assert.Equal(t, codes.Internal, status.Code(err))
}
