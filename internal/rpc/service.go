package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName matches the fully-qualified method paths below; there is no
// .proto file behind it (nothing here runs protoc), but the path shape is
// the same one protoc-gen-go-grpc would produce from a
// `service HeapQueryService` definition with these five RPCs.
const serviceName = "heapquery.HeapQueryService"

// HeapQueryServiceServer is implemented by Server (server.go) and exposes
// internal/heap's §6 API surface over grpc for the upward consumer that
// SPEC_FULL.md's DOMAIN STACK names as explicitly out of scope to build,
// but in scope to give a transport to.
type HeapQueryServiceServer interface {
	OpenDump(context.Context, *OpenDumpRequest) (*OpenDumpResponse, error)
	GetObject(context.Context, *GetObjectRequest) (*GetObjectResponse, error)
	GetClass(context.Context, *GetClassRequest) (*GetClassResponse, error)
	FindPathToRoot(context.Context, *FindPathToRootRequest) (*FindPathToRootResponse, error)
	ComputeDominators(context.Context, *ComputeDominatorsRequest) (*ComputeDominatorsResponse, error)
}

// RegisterHeapQueryServiceServer wires srv into s under serviceName.
func RegisterHeapQueryServiceServer(s grpc.ServiceRegistrar, srv HeapQueryServiceServer) {
	s.RegisterService(&heapQueryServiceDesc, srv)
}

var heapQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*HeapQueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenDump", Handler: openDumpHandler},
		{MethodName: "GetObject", Handler: getObjectHandler},
		{MethodName: "GetClass", Handler: getClassHandler},
		{MethodName: "FindPathToRoot", Handler: findPathToRootHandler},
		{MethodName: "ComputeDominators", Handler: computeDominatorsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/service.go",
}

func openDumpHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OpenDumpRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeapQueryServiceServer).OpenDump(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/OpenDump"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeapQueryServiceServer).OpenDump(ctx, req.(*OpenDumpRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getObjectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetObjectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeapQueryServiceServer).GetObject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetObject"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeapQueryServiceServer).GetObject(ctx, req.(*GetObjectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getClassHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetClassRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeapQueryServiceServer).GetClass(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetClass"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeapQueryServiceServer).GetClass(ctx, req.(*GetClassRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func findPathToRootHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FindPathToRootRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeapQueryServiceServer).FindPathToRoot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/FindPathToRoot"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeapQueryServiceServer).FindPathToRoot(ctx, req.(*FindPathToRootRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func computeDominatorsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ComputeDominatorsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeapQueryServiceServer).ComputeDominators(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ComputeDominators"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeapQueryServiceServer).ComputeDominators(ctx, req.(*ComputeDominatorsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// HeapQueryServiceClient is the client side of HeapQueryServiceServer.
type HeapQueryServiceClient interface {
	OpenDump(ctx context.Context, in *OpenDumpRequest, opts ...grpc.CallOption) (*OpenDumpResponse, error)
	GetObject(ctx context.Context, in *GetObjectRequest, opts ...grpc.CallOption) (*GetObjectResponse, error)
	GetClass(ctx context.Context, in *GetClassRequest, opts ...grpc.CallOption) (*GetClassResponse, error)
	FindPathToRoot(ctx context.Context, in *FindPathToRootRequest, opts ...grpc.CallOption) (*FindPathToRootResponse, error)
	ComputeDominators(ctx context.Context, in *ComputeDominatorsRequest, opts ...grpc.CallOption) (*ComputeDominatorsResponse, error)
}

type heapQueryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHeapQueryServiceClient wraps an established connection (see Dial).
func NewHeapQueryServiceClient(cc grpc.ClientConnInterface) HeapQueryServiceClient {
	return &heapQueryServiceClient{cc: cc}
}

func (c *heapQueryServiceClient) OpenDump(ctx context.Context, in *OpenDumpRequest, opts ...grpc.CallOption) (*OpenDumpResponse, error) {
	out := new(OpenDumpResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/OpenDump", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *heapQueryServiceClient) GetObject(ctx context.Context, in *GetObjectRequest, opts ...grpc.CallOption) (*GetObjectResponse, error) {
	out := new(GetObjectResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetObject", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *heapQueryServiceClient) GetClass(ctx context.Context, in *GetClassRequest, opts ...grpc.CallOption) (*GetClassResponse, error) {
	out := new(GetClassResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetClass", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *heapQueryServiceClient) FindPathToRoot(ctx context.Context, in *FindPathToRootRequest, opts ...grpc.CallOption) (*FindPathToRootResponse, error) {
	out := new(FindPathToRootResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FindPathToRoot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *heapQueryServiceClient) ComputeDominators(ctx context.Context, in *ComputeDominatorsRequest, opts ...grpc.CallOption) (*ComputeDominatorsResponse, error) {
	out := new(ComputeDominatorsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ComputeDominators", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
