package skyapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "thyrannic.sky.v1.SkyService"

const (
	GetSkyMethod     = "/" + ServiceName + "/GetSky"
	ListBodiesMethod = "/" + ServiceName + "/ListBodies"
)

// SkyServiceServer is the server API for the sky service. Messages are
// protobuf well-known types so no generated code is needed.
type SkyServiceServer interface {
	// GetSky returns a frame of the sky. An optional "time_value" (hours) or
	// "year"/"month"/"day"/"hour" fields select a moment other than the
	// current tick.
	GetSky(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListBodies returns the observer, the primary ID and every body's
	// orbital elements.
	ListBodies(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// SkyServiceClient is the client API for the sky service.
type SkyServiceClient interface {
	GetSky(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListBodies(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type skyServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSkyServiceClient(cc grpc.ClientConnInterface) SkyServiceClient {
	return &skyServiceClient{cc: cc}
}

func (c *skyServiceClient) GetSky(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetSkyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *skyServiceClient) ListBodies(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListBodiesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SkyServiceDesc describes the sky service for grpc.Server.RegisterService.
var SkyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SkyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSky", Handler: getSkyHandler},
		{MethodName: "ListBodies", Handler: listBodiesHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterSkyServiceServer registers srv on s.
func RegisterSkyServiceServer(s grpc.ServiceRegistrar, srv SkyServiceServer) {
	s.RegisterService(&SkyServiceDesc, srv)
}

func getSkyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SkyServiceServer).GetSky(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetSkyMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SkyServiceServer).GetSky(ctx, req.(*structpb.Struct))
	})
}

func listBodiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SkyServiceServer).ListBodies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListBodiesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SkyServiceServer).ListBodies(ctx, req.(*emptypb.Empty))
	})
}
