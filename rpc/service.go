package rpc

import (
	"context"
	"errors"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/becomeliminal/nim-memory/memory"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nim.memory.v1.Memory"

// Full method names.
const (
	addMethod    = "/" + ServiceName + "/Add"
	deleteMethod = "/" + ServiceName + "/Delete"
	searchMethod = "/" + ServiceName + "/Search"
)

// Request and response fields. Messages are google.protobuf.Struct values
// carrying these keys.
const (
	fieldKey     = "key"
	fieldContent = "content"
	fieldID      = "id"
	fieldQuery   = "query"
	fieldLimit   = "limit"
	fieldResults = "results"
)

// MemoryServer is the server API of the memory service.
type MemoryServer interface {
	Add(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the memory service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MemoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Add", Handler: unaryHandler(addMethod, MemoryServer.Add)},
		{MethodName: "Delete", Handler: unaryHandler(deleteMethod, MemoryServer.Delete)},
		{MethodName: "Search", Handler: unaryHandler(searchMethod, MemoryServer.Search)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nim/memory/v1/memory.proto",
}

func unaryHandler(fullMethod string, call func(MemoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MemoryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MemoryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Service adapts a memory.Provider to MemoryServer.
type Service struct {
	provider memory.Provider
}

var _ MemoryServer = (*Service)(nil)

// NewService wraps provider.
func NewService(provider memory.Provider) *Service {
	return &Service{provider: provider}
}

func (s *Service) Add(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, fieldKey)
	if err != nil {
		return nil, err
	}
	content, err := stringField(req, fieldContent)
	if err != nil {
		return nil, err
	}

	id, err := s.provider.Add(ctx, key, content)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{fieldID: id})
}

func (s *Service) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, fieldKey)
	if err != nil {
		return nil, err
	}
	id, err := stringField(req, fieldID)
	if err != nil {
		return nil, err
	}

	if err := s.provider.Delete(ctx, key, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *Service) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, fieldKey)
	if err != nil {
		return nil, err
	}
	query, err := stringField(req, fieldQuery)
	if err != nil {
		return nil, err
	}

	limit := memory.DefaultSearchLimit
	if v, ok := req.GetFields()[fieldLimit]; ok {
		limit = int(v.GetNumberValue())
	}

	results, err := s.provider.Search(ctx, key, query, limit)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make(map[string]interface{}, len(results))
	for id, text := range results {
		out[id] = text
	}
	return structpb.NewStruct(map[string]interface{}{fieldResults: out})
}

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "missing field %q", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "field %q must be a string", name)
	}
	return s.StringValue, nil
}

// toStatus maps memory errors onto gRPC status codes.
func toStatus(err error) error {
	var cfgErr *memory.ConfigurationError
	var stErr *memory.StorageError
	switch {
	case errors.Is(err, memory.ErrInvalidLimit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &cfgErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &stErr):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// NewServer builds a gRPC server exposing provider plus the standard health
// service. The returned health server reports SERVING for ServiceName.
func NewServer(provider memory.Provider, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)

	srv.RegisterService(&ServiceDesc, NewService(provider))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, hs
}

func logInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Printf("[RPC] %s failed after %v: %v", info.FullMethod, time.Since(start), err)
	}
	return resp, err
}
