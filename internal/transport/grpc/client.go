package grpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
)

type ClientOptions struct {
	Target      string
	Timeout     time.Duration
	DialOptions []grpc.DialOption // extra options, e.g. a bufconn dialer in tests
}

// Client calls the admin service.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

type RoomsPage struct {
	Rooms      []domain.RoomSummary `json:"rooms"`
	NextCursor string               `json:"nextCursor"`
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("admin client: empty target")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("admin client: new client failed: %w", err)
	}
	return &Client{conn: conn, timeout: opts.Timeout}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) ListRooms(ctx context.Context, limit int, cursor string) (RoomsPage, error) {
	in, err := structpb.NewStruct(map[string]any{"limit": limit, "cursor": cursor})
	if err != nil {
		return RoomsPage{}, err
	}
	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodListRooms, in, out); err != nil {
		return RoomsPage{}, err
	}
	var page RoomsPage
	if err := fromStruct(out, &page); err != nil {
		return RoomsPage{}, err
	}
	return page, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (domain.RoomState, error) {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, MethodGetRoom, wrapperspb.String(roomID), out); err != nil {
		return domain.RoomState{}, err
	}
	var st domain.RoomState
	if err := fromStruct(out, &st); err != nil {
		return domain.RoomState{}, err
	}
	return st, nil
}

func (c *Client) RoomExists(ctx context.Context, roomID string) (bool, error) {
	out := &wrapperspb.BoolValue{}
	if err := c.invoke(ctx, MethodRoomExists, wrapperspb.String(roomID), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.conn.Invoke(ctx, method, in, out)
}

func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
