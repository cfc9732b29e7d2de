package server

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/boardgames/wonders-server-go/internal/game"
)

// AdminServiceName is the full gRPC service name of the admin API.
const AdminServiceName = "wonders.admin.v1.Admin"

// AdminServer is the operator API. Messages are protobuf well-known types so
// no generated code is needed; game views travel as JSON-shaped Structs.
type AdminServer interface {
	// ListGames returns a summary of every live game.
	ListGames(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// GetGame takes {"id": ...} and returns the live summary, or the stored
	// snapshot when the game is no longer running.
	GetGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListStoredGames takes an optional {"limit": n} and returns stored
	// games, finished ones included, newest first.
	ListStoredGames(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	// RecoverGame takes {"id": ...} and resumes a faulted game.
	RecoverGame(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetServerState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type adminServer struct {
	manager *game.Manager
	version string
	started time.Time
	logger  *zap.Logger
}

// NewAdminServer creates the admin API over manager.
func NewAdminServer(manager *game.Manager, version string, logger *zap.Logger) AdminServer {
	return &adminServer{manager: manager, version: version, started: time.Now(), logger: logger}
}

func (s *adminServer) ListGames(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	games := s.manager.GetAllGames()
	items := make([]interface{}, 0, len(games))
	for _, g := range games {
		v, err := toJSONValue(g.Summary())
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode game %s: %v", g.ID, err)
		}
		items = append(items, v)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode games: %v", err)
	}
	return list, nil
}

func (s *adminServer) GetGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := req.GetFields()["id"].GetStringValue()
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	var view interface{}
	if g, ok := s.manager.GetGame(gameID); ok {
		view = g.Summary()
	} else {
		snap, err := s.manager.LoadSnapshot(ctx, gameID)
		if errors.Is(err, game.ErrGameNotFound) {
			return nil, status.Errorf(codes.NotFound, "game %s not found", gameID)
		}
		if err != nil {
			return nil, status.Errorf(codes.Unavailable, "failed to load game %s: %v", gameID, err)
		}
		view = snap
	}

	return toStruct(view)
}

func (s *adminServer) ListStoredGames(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	records, err := s.manager.RecentGames(ctx, limit)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed to list stored games: %v", err)
	}

	items := make([]interface{}, 0, len(records))
	for _, r := range records {
		v, err := toJSONValue(r)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode game %s: %v", r.ID, err)
		}
		items = append(items, v)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode games: %v", err)
	}
	return list, nil
}

func (s *adminServer) RecoverGame(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	gameID := req.GetFields()["id"].GetStringValue()
	g, ok := s.manager.GetGame(gameID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "game %s not found", gameID)
	}

	err := g.Recover(ctx)
	switch {
	case err == nil:
		s.logger.Info("game recovered by admin", zap.String("game_id", gameID))
		return &emptypb.Empty{}, nil
	case errors.Is(err, game.ErrPersistence):
		return nil, status.Errorf(codes.Unavailable, "%v", err)
	case errors.Is(err, game.ErrInvalidAction), errors.Is(err, game.ErrScoringInconsistency):
		return nil, status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, game.ErrGameClosed):
		return nil, status.Errorf(codes.NotFound, "%v", err)
	default:
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
}

func (s *adminServer) GetServerState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"version":     s.version,
		"activeGames": s.manager.GetActiveGameCount(),
		"openGames":   len(s.manager.OpenGames()),
		"goroutines":  runtime.NumGoroutine(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"serverTime":  time.Now().UTC().Format(time.RFC3339),
	})
}

func toJSONValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode: %v", err)
	}
	return out, nil
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

func adminListGamesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListGames(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/ListGames"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).ListGames(ctx, req.(*emptypb.Empty))
	})
}

func adminGetGameHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetGame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/GetGame"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).GetGame(ctx, req.(*structpb.Struct))
	})
}

func adminListStoredGamesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListStoredGames(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/ListStoredGames"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).ListStoredGames(ctx, req.(*structpb.Struct))
	})
}

func adminRecoverGameHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).RecoverGame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/RecoverGame"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).RecoverGame(ctx, req.(*structpb.Struct))
	})
}

func adminGetServerStateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetServerState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/GetServerState"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).GetServerState(ctx, req.(*emptypb.Empty))
	})
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListGames", Handler: adminListGamesHandler},
		{MethodName: "GetGame", Handler: adminGetGameHandler},
		{MethodName: "ListStoredGames", Handler: adminListStoredGamesHandler},
		{MethodName: "RecoverGame", Handler: adminRecoverGameHandler},
		{MethodName: "GetServerState", Handler: adminGetServerStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wonders/admin/v1/admin",
}

// GRPCOptions configures NewGRPCServer.
type GRPCOptions struct {
	Manager              *game.Manager
	Version              string
	AdminPasswordHash    string
	MaxConcurrentStreams int
	Logger               *zap.Logger
}

// NewGRPCServer builds the gRPC server with the admin API and the standard
// health service registered.
func NewGRPCServer(opts GRPCOptions) (*grpc.Server, *health.Server) {
	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(opts.Logger),
			LoggingInterceptor(opts.Logger),
			AdminAuthInterceptor(opts.AdminPasswordHash),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	}
	if opts.MaxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(uint32(opts.MaxConcurrentStreams)))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	RegisterAdminServer(grpcServer, NewAdminServer(opts.Manager, opts.Version, opts.Logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)

	return grpcServer, healthServer
}
