package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/store"
	"github.com/cwrk-planet/pointing-poker/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
)

// Publish is called with the snapshot of every successful mutation while
// the room is still locked, so callbacks observe mutations in order. It must
// not block.
type Publish = store.CommitFunc

type RoomService struct {
	rooms *store.RoomStore
	now   func() time.Time
	loc   *time.Location
}

type Option func(*RoomService)

func WithClock(now func() time.Time) Option {
	return func(s *RoomService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone used for fallback round descriptions.
func WithLocation(loc *time.Location) Option {
	return func(s *RoomService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewRoomService(rooms *store.RoomStore, opts ...Option) *RoomService {
	s := &RoomService{
		rooms: rooms,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom создаёт комнату со свежим id и сразу добавляет в неё создателя.
func (s *RoomService) CreateRoom(ctx context.Context, userID, userName string, publish Publish) (domain.RoomState, error) {
	st, err := s.rooms.Create(func(r *domain.Room) error {
		return r.Join(userID, userName, s.now())
	}, publish)
	if err != nil {
		return domain.RoomState{}, fmt.Errorf("create room: %w", err)
	}
	logger.FromContext(ctx).InfoContext(ctx, "room created", slog.String("room", st.ID), slog.String("user", userID))
	return st, nil
}

// JoinRoom добавляет участника, создавая комнату при необходимости.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID, userName string, publish Publish) (domain.RoomState, error) {
	st, _, err := s.rooms.Upsert(roomID, func(r *domain.Room) error {
		return r.Join(userID, userName, s.now())
	}, publish)
	if err != nil {
		return domain.RoomState{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	logger.FromContext(ctx).InfoContext(ctx, "user joined",
		slog.String("room", st.ID), slog.String("user", userID), slog.Int("participants", len(st.Participants)))
	return st, nil
}

func (s *RoomService) SubmitVote(ctx context.Context, roomID, userID, vote string, publish Publish) (domain.RoomState, error) {
	return s.update(ctx, "vote", roomID, userID, func(r *domain.Room) error {
		return r.Vote(userID, vote)
	}, publish)
}

func (s *RoomService) RevealVotes(ctx context.Context, roomID, userID string, publish Publish) (domain.RoomState, error) {
	return s.update(ctx, "reveal", roomID, userID, func(r *domain.Room) error {
		r.Reveal()
		return nil
	}, publish)
}

// ClearVotes завершает раунд; раскрытый раунд с голосами уходит в историю.
func (s *RoomService) ClearVotes(ctx context.Context, roomID, userID string, publish Publish) (domain.RoomState, error) {
	var archived *domain.VotingRound
	st, err := s.update(ctx, "clear", roomID, userID, func(r *domain.Room) error {
		archived = r.Clear(s.now(), s.loc)
		return nil
	}, publish)
	if err == nil && archived != nil {
		attrs := []any{slog.String("room", st.ID), slog.Int("votes", len(archived.Votes)), slog.Int64("duration_s", archived.DurationSeconds)}
		if archived.Average != nil {
			attrs = append(attrs, slog.Float64("average", *archived.Average))
		}
		logger.FromContext(ctx).InfoContext(ctx, "round archived", attrs...)
	}
	return st, err
}

func (s *RoomService) SetDescription(ctx context.Context, roomID, userID, text string, publish Publish) (domain.RoomState, error) {
	return s.update(ctx, "describe", roomID, userID, func(r *domain.Room) error {
		r.SetDescription(text)
		return nil
	}, publish)
}

func (s *RoomService) DeleteHistory(ctx context.Context, roomID, userID string, index int, publish Publish) (domain.RoomState, error) {
	return s.update(ctx, "delete-history", roomID, userID, func(r *domain.Room) error {
		return r.DeleteHistoryEntry(index)
	}, publish)
}

// LeaveRoom убирает участника. exists == false, если комната опустела и удалена.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string, publish Publish) (st domain.RoomState, exists bool, err error) {
	id, err := lookupID(roomID)
	if err != nil {
		return domain.RoomState{}, false, err
	}
	left := false
	st, exists, err = s.rooms.Update(id, func(r *domain.Room) error {
		left = r.Leave(userID)
		return nil
	}, publish)
	if err != nil {
		return domain.RoomState{}, false, fmt.Errorf("leave room %s: %w", id, err)
	}

	log := logger.FromContext(ctx)
	if left {
		log.InfoContext(ctx, "user left", slog.String("room", id), slog.String("user", userID))
	}
	if !exists {
		log.InfoContext(ctx, "room deleted", slog.String("room", id))
	}
	return st, exists, nil
}

func (s *RoomService) RoomExists(_ context.Context, roomID string) bool {
	id, err := domain.NormalizeRoomID(roomID)
	if err != nil {
		return false
	}
	return s.rooms.RoomExists(id)
}

// GetRoomState возвращает санитизированный снимок комнаты.
func (s *RoomService) GetRoomState(_ context.Context, roomID string) (domain.RoomState, error) {
	id, err := lookupID(roomID)
	if err != nil {
		return domain.RoomState{}, err
	}
	return s.rooms.State(id)
}

// ListRooms возвращает список комнат с курсорной пагинацией.
func (s *RoomService) ListRooms(_ context.Context, limit int, cursor string) ([]domain.RoomSummary, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.rooms.List(limit, cursor)
}

func (s *RoomService) update(ctx context.Context, op, roomID, userID string, fn store.MutateFunc, publish Publish) (domain.RoomState, error) {
	log := logger.FromContext(ctx).With(slog.String("op", op), slog.String("room", roomID), slog.String("user", userID))

	id, err := lookupID(roomID)
	if err != nil {
		log.DebugContext(ctx, "rejected", slog.Any("err", err))
		return domain.RoomState{}, err
	}
	st, _, err := s.rooms.Update(id, fn, publish)
	if err != nil {
		log.DebugContext(ctx, "rejected", slog.Any("err", err))
		return domain.RoomState{}, fmt.Errorf("%s: %w", op, err)
	}
	log.DebugContext(ctx, "room updated", slog.Uint64("version", st.Version))
	return st, nil
}

// lookupID normalises an id addressed to an existing room. A malformed id
// can never name a live room.
func lookupID(roomID string) (string, error) {
	id, err := domain.NormalizeRoomID(roomID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrRoomNotFound, roomID)
	}
	return id, nil
}
