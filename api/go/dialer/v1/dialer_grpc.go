package dialerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "dialer.v1.DialerService"

const (
	placeCallMethod = "/" + ServiceName + "/PlaceCall"
	getCallMethod   = "/" + ServiceName + "/GetCall"
	listCallsMethod = "/" + ServiceName + "/ListCalls"
	playAudioMethod = "/" + ServiceName + "/PlayAudio"
	hangupMethod    = "/" + ServiceName + "/Hangup"
)

// DialerServiceServer is implemented by the dialer.
type DialerServiceServer interface {
	PlaceCall(context.Context, *PlaceCallRequest) (*Call, error)
	GetCall(context.Context, *wrapperspb.StringValue) (*Call, error)
	ListCalls(context.Context, *wrapperspb.Int32Value) (*ListCallsResponse, error)
	PlayAudio(context.Context, *wrapperspb.StringValue) (*PlayAudioResponse, error)
	Hangup(context.Context, *wrapperspb.StringValue) (*Call, error)
}

// UnimplementedDialerServiceServer can be embedded for forward compatibility.
type UnimplementedDialerServiceServer struct{}

func (UnimplementedDialerServiceServer) PlaceCall(context.Context, *PlaceCallRequest) (*Call, error) {
	return nil, status.Error(codes.Unimplemented, "method PlaceCall not implemented")
}
func (UnimplementedDialerServiceServer) GetCall(context.Context, *wrapperspb.StringValue) (*Call, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCall not implemented")
}
func (UnimplementedDialerServiceServer) ListCalls(context.Context, *wrapperspb.Int32Value) (*ListCallsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListCalls not implemented")
}
func (UnimplementedDialerServiceServer) PlayAudio(context.Context, *wrapperspb.StringValue) (*PlayAudioResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PlayAudio not implemented")
}
func (UnimplementedDialerServiceServer) Hangup(context.Context, *wrapperspb.StringValue) (*Call, error) {
	return nil, status.Error(codes.Unimplemented, "method Hangup not implemented")
}

func RegisterDialerServiceServer(s grpc.ServiceRegistrar, srv DialerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a method handler for one request type.
func unary[Req any, Resp any](method string, call func(DialerServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DialerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DialerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DialerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceCall", Handler: unary(placeCallMethod, DialerServiceServer.PlaceCall)},
		{MethodName: "GetCall", Handler: unary(getCallMethod, DialerServiceServer.GetCall)},
		{MethodName: "ListCalls", Handler: unary(listCallsMethod, DialerServiceServer.ListCalls)},
		{MethodName: "PlayAudio", Handler: unary(playAudioMethod, DialerServiceServer.PlayAudio)},
		{MethodName: "Hangup", Handler: unary(hangupMethod, DialerServiceServer.Hangup)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/go/dialer/v1/dialer.go",
}

// DialerServiceClient is the client side of the service.
type DialerServiceClient interface {
	PlaceCall(ctx context.Context, in *PlaceCallRequest, opts ...grpc.CallOption) (*Call, error)
	GetCall(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*Call, error)
	ListCalls(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*ListCallsResponse, error)
	PlayAudio(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*PlayAudioResponse, error)
	Hangup(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*Call, error)
}

type dialerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDialerServiceClient(cc grpc.ClientConnInterface) DialerServiceClient {
	return &dialerServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *dialerServiceClient) PlaceCall(ctx context.Context, in *PlaceCallRequest, opts ...grpc.CallOption) (*Call, error) {
	return invoke[Call](ctx, c.cc, placeCallMethod, in, opts)
}

func (c *dialerServiceClient) GetCall(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*Call, error) {
	return invoke[Call](ctx, c.cc, getCallMethod, in, opts)
}

func (c *dialerServiceClient) ListCalls(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*ListCallsResponse, error) {
	return invoke[ListCallsResponse](ctx, c.cc, listCallsMethod, in, opts)
}

func (c *dialerServiceClient) PlayAudio(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*PlayAudioResponse, error) {
	return invoke[PlayAudioResponse](ctx, c.cc, playAudioMethod, in, opts)
}

func (c *dialerServiceClient) Hangup(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*Call, error) {
	return invoke[Call](ctx, c.cc, hangupMethod, in, opts)
}
