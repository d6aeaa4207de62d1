package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"golang.org/x/time/rate"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/service"
	"github.com/cwrk-planet/pointing-poker/pkg/logger"
)

var errBadRequest = errors.New("bad request")

type RoomSvc interface {
	CreateRoom(ctx context.Context, userID, userName string, publish service.Publish) (domain.RoomState, error)
	JoinRoom(ctx context.Context, roomID, userID, userName string, publish service.Publish) (domain.RoomState, error)
	SubmitVote(ctx context.Context, roomID, userID, vote string, publish service.Publish) (domain.RoomState, error)
	RevealVotes(ctx context.Context, roomID, userID string, publish service.Publish) (domain.RoomState, error)
	ClearVotes(ctx context.Context, roomID, userID string, publish service.Publish) (domain.RoomState, error)
	SetDescription(ctx context.Context, roomID, userID, text string, publish service.Publish) (domain.RoomState, error)
	DeleteHistory(ctx context.Context, roomID, userID string, index int, publish service.Publish) (domain.RoomState, error)
	LeaveRoom(ctx context.Context, roomID, userID string, publish service.Publish) (domain.RoomState, bool, error)
}

// Session is the per-connection state kept by the router. It is owned by the
// connection's read loop and is not safe for concurrent use.
type Session struct {
	conn    Conn
	limiter *rate.Limiter
	roomID  string // комната, в которой сейчас состоит соединение
}

func (s *Session) UserID() string { return s.conn.ID() }

func (s *Session) RoomID() string { return s.roomID }

// Router dispatches inbound actions of one connection to the room service and
// fans the results out through the hub.
type Router struct {
	svc   RoomSvc
	hub   *Hub
	limit rate.Limit
	burst int
}

func NewRouter(svc RoomSvc, hub *Hub, cfg Config) *Router {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Router{svc: svc, hub: hub, limit: limit, burst: burst}
}

func (r *Router) NewSession(c Conn) *Session {
	return &Session{conn: c, limiter: rate.NewLimiter(r.limit, r.burst)}
}

// Dispatch handles one inbound frame. Every request gets exactly one ack;
// failures never change room state.
func (r *Router) Dispatch(ctx context.Context, s *Session, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		r.reply(s, "", fail(fmt.Errorf("%w: malformed frame: %v", errBadRequest, err)))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).ErrorContext(ctx, "ws handler panic",
				slog.String("action", req.Type), slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
			r.reply(s, req.ID, AckPayload{Success: false, Error: "internal error", Code: CodeInternal})
		}
	}()

	if !s.limiter.Allow() {
		r.reply(s, req.ID, AckPayload{Success: false, Error: "too many requests", Code: CodeRateLimited})
		return
	}

	var err error
	switch req.Type {
	case ActionCreateRoom:
		err = r.createRoom(ctx, s, req)
	case ActionJoinRoom:
		err = r.joinRoom(ctx, s, req)
	case ActionSubmitVote:
		err = r.submitVote(ctx, s, req)
	case ActionRevealVotes:
		err = r.roomAction(ctx, s, req, r.svc.RevealVotes)
	case ActionClearVotes:
		err = r.roomAction(ctx, s, req, r.svc.ClearVotes)
	case ActionSetDescription:
		err = r.setDescription(ctx, s, req)
	case ActionDeleteHistory:
		err = r.deleteHistory(ctx, s, req)
	case ActionLeaveRoom:
		err = r.leaveRoom(ctx, s, req)
	default:
		err = fmt.Errorf("%w: unknown action %q", errBadRequest, req.Type)
	}
	if err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "ws action rejected", slog.String("action", req.Type), slog.Any("err", err))
		r.reply(s, req.ID, fail(err))
	}
}

// Disconnect is the implicit leave of a closed connection.
func (r *Router) Disconnect(ctx context.Context, s *Session) {
	if s.roomID == "" {
		return
	}
	if err := r.leave(ctx, s); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "ws disconnect leave failed", slog.Any("err", err))
	}
}

func (r *Router) createRoom(ctx context.Context, s *Session, req Request) error {
	var p CreateRoomPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.UserName) == "" {
		return fmt.Errorf("%w: userName is required", errBadRequest)
	}
	r.leaveCurrent(ctx, s)

	_, err := r.svc.CreateRoom(ctx, s.UserID(), p.UserName, func(st domain.RoomState, _ bool) {
		r.hub.Add(st.ID, s.conn)
		s.roomID = st.ID
		r.reply(s, req.ID, AckPayload{Success: true, RoomID: st.ID, UserID: s.UserID(), RoomState: &st})
	})
	return err
}

func (r *Router) joinRoom(ctx context.Context, s *Session, req Request) error {
	var p JoinRoomPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.UserName) == "" {
		return fmt.Errorf("%w: userName is required", errBadRequest)
	}
	roomID, err := domain.NormalizeRoomID(p.RoomID)
	if err != nil {
		return err
	}
	if s.roomID != roomID {
		r.leaveCurrent(ctx, s)
	}

	_, err = r.svc.JoinRoom(ctx, roomID, s.UserID(), p.UserName, func(st domain.RoomState, _ bool) {
		r.hub.Add(st.ID, s.conn)
		s.roomID = st.ID
		r.reply(s, req.ID, AckPayload{Success: true, RoomID: st.ID, UserID: s.UserID(), RoomState: &st})
		r.hub.BroadcastExcept(st.ID, s.conn, Message{
			Type:    TypeUserJoined,
			Payload: UserJoinedPayload{
				UserID:    s.UserID(),
				UserName:  strings.TrimSpace(p.UserName),
				RoomState: st,
			},
		})
	})
	return err
}

func (r *Router) submitVote(ctx context.Context, s *Session, req Request) error {
	var p SubmitVotePayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	if p.Vote == "" {
		return fmt.Errorf("%w: %v", errBadRequest, errEmptyVote)
	}
	_, err := r.svc.SubmitVote(ctx, p.RoomID, s.UserID(), string(p.Vote), r.roomUpdated(s, req.ID))
	return err
}

func (r *Router) setDescription(ctx context.Context, s *Session, req Request) error {
	var p SetDescriptionPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	_, err := r.svc.SetDescription(ctx, p.RoomID, s.UserID(), p.Description, r.roomUpdated(s, req.ID))
	return err
}

func (r *Router) deleteHistory(ctx context.Context, s *Session, req Request) error {
	var p DeleteHistoryPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	if p.Index == nil {
		return fmt.Errorf("%w: index is required", errBadRequest)
	}
	_, err := r.svc.DeleteHistory(ctx, p.RoomID, s.UserID(), *p.Index, r.roomUpdated(s, req.ID))
	return err
}

type roomActionFunc func(ctx context.Context, roomID, userID string, publish service.Publish) (domain.RoomState, error)

func (r *Router) roomAction(ctx context.Context, s *Session, req Request, action roomActionFunc) error {
	var p RoomPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	_, err := action(ctx, p.RoomID, s.UserID(), r.roomUpdated(s, req.ID))
	return err
}

func (r *Router) leaveRoom(ctx context.Context, s *Session, req Request) error {
	var p RoomPayload
	if err := decode(req.Payload, &p); err != nil {
		return err
	}
	roomID, err := domain.NormalizeRoomID(p.RoomID)
	if err != nil || roomID != s.roomID {
		// соединение не в этой комнате: выходить неоткуда
		r.reply(s, req.ID, AckPayload{Success: true, RoomID: p.RoomID})
		return nil
	}
	if err := r.leave(ctx, s); err != nil {
		return err
	}
	r.reply(s, req.ID, AckPayload{Success: true, RoomID: roomID})
	return nil
}

// leaveCurrent leaves the session's room before it moves to another one.
func (r *Router) leaveCurrent(ctx context.Context, s *Session) {
	if s.roomID == "" {
		return
	}
	if err := r.leave(ctx, s); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "ws implicit leave failed", slog.Any("err", err))
	}
}

func (r *Router) leave(ctx context.Context, s *Session) error {
	roomID := s.roomID
	s.roomID = ""
	defer r.hub.Remove(roomID, s.conn)

	_, _, err := r.svc.LeaveRoom(ctx, roomID, s.UserID(), func(st domain.RoomState, exists bool) {
		r.hub.Remove(roomID, s.conn)
		if !exists {
			return
		}
		r.hub.Broadcast(roomID, Message{
			Type:    TypeUserLeft,
			Payload: UserLeftPayload{UserID: s.UserID(), RoomState: st},
		})
	})
	return err
}

// roomUpdated broadcasts the new snapshot to the whole room, actor included,
// and acks the actor.
func (r *Router) roomUpdated(s *Session, reqID string) service.Publish {
	return func(st domain.RoomState, _ bool) {
		r.hub.Broadcast(st.ID, Message{Type: TypeRoomUpdated, Payload: st})
		r.reply(s, reqID, AckPayload{Success: true, RoomID: st.ID})
	}
}

func (r *Router) reply(s *Session, reqID string, ack AckPayload) {
	frame, err := json.Marshal(Message{ID: reqID, Type: TypeAck, Payload: ack})
	if err != nil {
		slog.Error("ws encode ack failed", "err", err)
		return
	}
	s.conn.Enqueue(frame)
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", errBadRequest)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func fail(err error) AckPayload {
	code, msg := errorCode(err)
	return AckPayload{Success: false, Error: msg, Code: code}
}

// errorCode maps an error to its wire code and a client-facing message.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound, domain.ErrRoomNotFound.Error()
	case errors.Is(err, domain.ErrNotAParticipant):
		return CodeNotAParticipant, domain.ErrNotAParticipant.Error()
	case errors.Is(err, domain.ErrVotingClosed):
		return CodeVotingClosed, domain.ErrVotingClosed.Error()
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return CodeIndexOutOfRange, domain.ErrIndexOutOfRange.Error()
	case errors.Is(err, domain.ErrInvalidRoomID):
		return CodeInvalidRoomID, domain.ErrInvalidRoomID.Error()
	case errors.Is(err, domain.ErrEmptyName), errors.Is(err, errBadRequest):
		return CodeBadRequest, err.Error()
	default:
		return CodeInternal, "internal error"
	}
}
