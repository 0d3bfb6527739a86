package noderpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "kluster.Node"

	storeMethod   = "/" + ServiceName + "/Store"
	executeMethod = "/" + ServiceName + "/Execute"

	typePrefix   = "type.kluster.dev/"
	storeOpType  = typePrefix + "kluster.StoreOp"
	taskTypeBase = typePrefix + "kluster.Task/"
)

// NodeServer is the server side of the node-to-node service. Requests carry
// an opaque payload in an Any message whose type URL names the payload kind,
// responses are raw bytes.
type NodeServer interface {
	Store(ctx context.Context, in *anypb.Any) (*wrapperspb.BytesValue, error)
	Execute(ctx context.Context, in *anypb.Any) (*wrapperspb.BytesValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Store", Handler: storeHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kluster/node.proto",
}

// RegisterNodeServer registers the service implementation on a gRPC server.
func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&serviceDesc, srv)
}

func storeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(anypb.Any)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(NodeServer).Store(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: storeMethod}

	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Store(ctx, req.(*anypb.Any))
	})
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(anypb.Any)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(NodeServer).Execute(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeMethod}

	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Execute(ctx, req.(*anypb.Any))
	})
}
