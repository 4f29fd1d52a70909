package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/olyamironova/swap-router/internal/api/dto"
	"github.com/olyamironova/swap-router/internal/core"
	"github.com/olyamironova/swap-router/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "swaprouter.v1.SwapRouter"

// SwapRouterServer is the service behind ServiceDesc. Messages are
// google.protobuf.Struct with the field names of the JSON API.
type SwapRouterServer interface {
	ExecuteSwap(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	QuoteSwap(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwapRouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteSwap", Handler: unaryHandler("ExecuteSwap", SwapRouterServer.ExecuteSwap)},
		{MethodName: "QuoteSwap", Handler: unaryHandler("QuoteSwap", SwapRouterServer.QuoteSwap)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swaprouter/v1/swap_router.proto",
}

func Register(s grpc.ServiceRegistrar, srv SwapRouterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type method func(SwapRouterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call method) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SwapRouterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SwapRouterServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type Router interface {
	Execute(ctx context.Context, p core.ExecuteParams) (domain.RouteOutcome, error)
	Quote(ctx context.Context, p core.ExecuteParams) (domain.RouteOutcome, error)
}

type GRPCServer struct {
	router Router
}

var _ SwapRouterServer = (*GRPCServer)(nil)

func NewGRPCServer(router Router) *GRPCServer {
	return &GRPCServer{router: router}
}

func (s *GRPCServer) ExecuteSwap(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.swap(ctx, in, false)
}

func (s *GRPCServer) QuoteSwap(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.swap(ctx, in, true)
}

func (s *GRPCServer) swap(ctx context.Context, in *structpb.Struct, dryRun bool) (*structpb.Struct, error) {
	var req dto.SwapRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	p, err := req.ToParams()
	if err != nil {
		return nil, status.Error(CodeFor(err), err.Error())
	}
	var out domain.RouteOutcome
	if dryRun {
		out, err = s.router.Quote(ctx, p)
	} else {
		out, err = s.router.Execute(ctx, p)
	}
	if err != nil {
		return nil, status.Error(CodeFor(err), err.Error())
	}
	res, err := ToStruct(dto.FromOutcome(out, dryRun))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return res, nil
}

// CodeFor maps the route error taxonomy onto gRPC status codes.
func CodeFor(err error) codes.Code {
	switch domain.Code(err) {
	case "InvalidRequest":
		return codes.InvalidArgument
	case "DeadlineExceeded":
		return codes.DeadlineExceeded
	case "SlippageExceeded":
		return codes.FailedPrecondition
	case "InsufficientLiquidity":
		return codes.ResourceExhausted
	case "MarketUnavailable":
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.InfoContext(ctx, "grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// ToStruct converts a JSON-tagged value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a Struct into a JSON-tagged value.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("empty message")
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
