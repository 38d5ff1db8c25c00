package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/menuocr/internal/common"
)

// ServiceName is the fully qualified gRPC service.
const ServiceName = "menuocr.v1.MenuService"

// RequestIDHeader is read from incoming metadata and HTTP headers.
const RequestIDHeader = "x-request-id"

// MenuServiceServer exchanges google.protobuf.Struct payloads so no generated
// stubs are needed. Request fields mirror the HTTP JSON bodies.
type MenuServiceServer interface {
	ProcessMenu(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateMenu(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScoreMenu(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// MenuServiceDesc is registered by RegisterMenuServiceServer.
var MenuServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MenuServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessMenu", Handler: unaryHandler("ProcessMenu", MenuServiceServer.ProcessMenu)},
		{MethodName: "ValidateMenu", Handler: unaryHandler("ValidateMenu", MenuServiceServer.ValidateMenu)},
		{MethodName: "ScoreMenu", Handler: unaryHandler("ScoreMenu", MenuServiceServer.ScoreMenu)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "menuocr/v1/menu.proto",
}

func RegisterMenuServiceServer(s grpc.ServiceRegistrar, srv MenuServiceServer) {
	s.RegisterService(&MenuServiceDesc, srv)
}

type unaryMethod func(MenuServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MenuServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MenuServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MenuServer adapts MenuService onto the gRPC surface.
type MenuServer struct {
	svc    *MenuService
	logger *slog.Logger
}

var _ MenuServiceServer = (*MenuServer)(nil)

func NewMenuServer(svc *MenuService, logger *slog.Logger) *MenuServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuServer{svc: svc, logger: logger}
}

func (s *MenuServer) ProcessMenu(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.svc.Process(ctx, stringField(req, "image"))
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(out)
}

func (s *MenuServer) ValidateMenu(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.svc.Validate(ctx, stringField(req, "text"))
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(out)
}

func (s *MenuServer) ScoreMenu(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.svc.Score(stringField(req, "text"))
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(out)
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[key].GetStringValue()
}

// toStruct goes through JSON so the payload keeps the same field names as the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// LoggingInterceptor carries x-request-id into the context and logs each call.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, rid := common.EnsureRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.call",
			"req_id", rid,
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer builds a server with the menu and health services registered.
// The health server is returned so callers can flip it to NOT_SERVING on shutdown.
func NewGRPCServer(svc *MenuService, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	grpcServer := grpc.NewServer(opts...)
	RegisterMenuServiceServer(grpcServer, NewMenuServer(svc, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return grpcServer, healthServer
}
