package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Admin service payloads are protobuf well-known types, so the service needs
// no generated code:
//
//	ListRooms(Struct{limit, cursor}) -> Struct{rooms, nextCursor}
//	GetRoom(StringValue roomId)      -> Struct (room snapshot)
//	RoomExists(StringValue roomId)   -> BoolValue
const (
	ServiceName = "pointingpoker.admin.v1.RoomAdmin"

	MethodListRooms  = "/" + ServiceName + "/ListRooms"
	MethodGetRoom    = "/" + ServiceName + "/GetRoom"
	MethodRoomExists = "/" + ServiceName + "/RoomExists"
)

type RoomAdminServer interface {
	ListRooms(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	RoomExists(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

var roomAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRooms", Handler: listRoomsHandler},
		{MethodName: "GetRoom", Handler: getRoomHandler},
		{MethodName: "RoomExists", Handler: roomExistsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pointingpoker/admin/v1/admin.proto",
}

func Register(grpcServer *grpc.Server, s RoomAdminServer) {
	grpcServer.RegisterService(&roomAdminServiceDesc, s)
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListRooms}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).ListRooms(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getRoomHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).GetRoom(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetRoom}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).GetRoom(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func roomExistsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RoomAdminServer).RoomExists(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRoomExists}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RoomAdminServer).RoomExists(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}
