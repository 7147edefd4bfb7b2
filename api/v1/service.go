// Package v1 describes the ocrsupervisor.v1.Supervisor gRPC service. Messages are
// protobuf well-known types, so the service needs no generated code.
package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "ocrsupervisor.v1.Supervisor"

const (
	Supervisor_Start_FullMethodName     = "/" + ServiceName + "/Start"
	Supervisor_Stop_FullMethodName      = "/" + ServiceName + "/Stop"
	Supervisor_Status_FullMethodName    = "/" + ServiceName + "/Status"
	Supervisor_Provision_FullMethodName = "/" + ServiceName + "/Provision"
	Supervisor_GetOutput_FullMethodName = "/" + ServiceName + "/GetOutput"
)

// SupervisorServer is the server API for the Supervisor service.
//
// Start takes the backend kind and blocks until the backend is ready or has failed.
// Stop, Status and Start return the supervisor status (see StatusToProto).
// Provision takes the backend kind and reports whether the environment is usable.
// GetOutput streams the current backend's output (see OutputToProto).
type SupervisorServer interface {
	Start(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Provision(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	GetOutput(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

func RegisterSupervisorServer(s grpc.ServiceRegistrar, srv SupervisorServer) {
	s.RegisterService(&Supervisor_ServiceDesc, srv)
}

func unaryHandler[Req any, PReq interface {
	*Req
}, Res any](method string, call func(SupervisorServer, context.Context, PReq) (Res, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SupervisorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SupervisorServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func getOutputHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SupervisorServer).GetOutput(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

var Supervisor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupervisorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Start",
			Handler: unaryHandler(Supervisor_Start_FullMethodName, func(s SupervisorServer, ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
				return s.Start(ctx, in)
			}),
		},
		{
			MethodName: "Stop",
			Handler: unaryHandler(Supervisor_Stop_FullMethodName, func(s SupervisorServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.Stop(ctx, in)
			}),
		},
		{
			MethodName: "Status",
			Handler: unaryHandler(Supervisor_Status_FullMethodName, func(s SupervisorServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.Status(ctx, in)
			}),
		},
		{
			MethodName: "Provision",
			Handler: unaryHandler(Supervisor_Provision_FullMethodName, func(s SupervisorServer, ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
				return s.Provision(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetOutput",
			Handler:       getOutputHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ocrsupervisor/v1/supervisor.proto",
}

// SupervisorClient is the client API for the Supervisor service.
type SupervisorClient struct {
	cc grpc.ClientConnInterface
}

func NewSupervisorClient(cc grpc.ClientConnInterface) *SupervisorClient {
	return &SupervisorClient{cc: cc}
}

func (c *SupervisorClient) Start(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Supervisor_Start_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SupervisorClient) Stop(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Supervisor_Stop_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SupervisorClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Supervisor_Status_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SupervisorClient) Provision(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, Supervisor_Provision_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SupervisorClient) GetOutput(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &Supervisor_ServiceDesc.Streams[0], Supervisor_GetOutput_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
