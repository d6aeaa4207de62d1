package grpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/store"
)

type RoomSvc interface {
	RoomExists(ctx context.Context, roomID string) bool
	GetRoomState(ctx context.Context, roomID string) (domain.RoomState, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error)
}

// Server is the read-only admin API over the room registry.
type Server struct {
	rooms RoomSvc
}

func NewServer(rooms RoomSvc) *Server {
	return &Server{rooms: rooms}
}

func (s *Server) ListRooms(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var limit int
	var cursor string
	if in != nil {
		fields := in.GetFields()
		if v, ok := fields["limit"]; ok {
			limit = int(v.GetNumberValue())
		}
		if v, ok := fields["cursor"]; ok {
			cursor = v.GetStringValue()
		}
	}

	rooms, next, err := s.rooms.ListRooms(ctx, limit, cursor)
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(struct {
		Rooms      []domain.RoomSummary `json:"rooms"`
		NextCursor string               `json:"nextCursor"`
	}{rooms, next})
}

func (s *Server) GetRoom(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	st, err := s.rooms.GetRoomState(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return toStruct(st)
}

func (s *Server) RoomExists(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.rooms.RoomExists(ctx, in.GetValue())), nil
}

// toStruct converts v through its JSON form, so the admin API returns
// exactly what websocket clients see.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode: %v", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode: %v", err))
	}
	return out, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRoomID), errors.Is(err, store.ErrInvalidCursor):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotAParticipant),
		errors.Is(err, domain.ErrVotingClosed),
		errors.Is(err, domain.ErrIndexOutOfRange):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
