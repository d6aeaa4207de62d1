package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxIDAttempts bounds the regeneration loop of CreateRoom.
const maxIDAttempts = 64

var ErrIDExhausted = errors.New("could not allocate a free room id")

// MutateFunc changes a room in place. A returned error means the room was
// left untouched.
type MutateFunc func(r *domain.Room) error

// CommitFunc receives the snapshot of a successful mutation while the room
// is still locked. exists is false when the mutation emptied the room and it
// was removed.
type CommitFunc func(st domain.RoomState, exists bool)

type entry struct {
	mu      sync.Mutex
	room    *domain.Room
	deleted bool
}

// RoomStore is the in-memory registry of rooms. The registry lock only
// guards the map; each room has its own mutex, so operations on one id are
// serialised while different rooms never wait on each other.
//
// Lock order is entry.mu before RoomStore.mu.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*entry

	now   func() time.Time
	newID func() (string, error)
}

type Option func(*RoomStore)

func WithClock(now func() time.Time) Option {
	return func(s *RoomStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the random id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *RoomStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func New(opts ...Option) *RoomStore {
	s := &RoomStore{
		rooms: make(map[string]*entry),
		now:   time.Now,
		newID: RandomID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomID draws a room id from crypto/rand without modulo bias.
func RandomID() (string, error) {
	out := make([]byte, 0, domain.RoomIDLength)
	buf := make([]byte, domain.RoomIDLength*2)
	for len(out) < domain.RoomIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			// 252 is the largest multiple of len(idAlphabet) below 256
			if b >= 252 {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == domain.RoomIDLength {
				break
			}
		}
	}
	return string(out), nil
}

// CreateRoom registers an empty room under a fresh id.
func (s *RoomStore) CreateRoom() (string, error) {
	e, err := s.register()
	if err != nil {
		return "", err
	}
	id := e.room.ID
	e.mu.Unlock()
	return id, nil
}

// Create registers a room under a fresh id and applies fn to it before any
// other caller can see it. If fn fails the room is discarded.
func (s *RoomStore) Create(fn MutateFunc, commit CommitFunc) (domain.RoomState, error) {
	e, err := s.register()
	if err != nil {
		return domain.RoomState{}, err
	}
	st, _, err := s.apply(e, fn, commit)
	return st, err
}

func (s *RoomStore) register() (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range maxIDAttempts {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}
		if _, taken := s.rooms[id]; taken {
			continue
		}
		e := &entry{room: domain.NewRoom(id, s.now())}
		e.mu.Lock()
		s.rooms[id] = e
		return e, nil
	}
	return nil, ErrIDExhausted
}

// CreateRoomWithID creates the room if it does not exist yet. The id is
// normalised to upper case.
func (s *RoomStore) CreateRoomWithID(id string) (string, error) {
	id, err := domain.NormalizeRoomID(id)
	if err != nil {
		return "", err
	}
	e, err := s.acquire(id, true)
	if err != nil {
		return "", err
	}
	e.mu.Unlock()
	return id, nil
}

func (s *RoomStore) RoomExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[id]
	return ok
}

// GetRoom returns a deep copy of the room.
func (s *RoomStore) GetRoom(id string) (*domain.Room, error) {
	e, err := s.acquire(id, false)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

// State returns the sanitized snapshot of the room.
func (s *RoomStore) State(id string) (domain.RoomState, error) {
	e, err := s.acquire(id, false)
	if err != nil {
		return domain.RoomState{}, err
	}
	defer e.mu.Unlock()
	return e.room.State(), nil
}

// DeleteRoom removes the room. Deleting an unknown id is a no-op.
func (s *RoomStore) DeleteRoom(id string) {
	e, err := s.acquire(id, false)
	if err != nil {
		return
	}
	defer e.mu.Unlock()
	s.remove(id, e)
}

// Update applies fn to an existing room. It returns the snapshot after the
// mutation and whether the room still exists.
func (s *RoomStore) Update(id string, fn MutateFunc, commit CommitFunc) (domain.RoomState, bool, error) {
	e, err := s.acquire(id, false)
	if err != nil {
		return domain.RoomState{}, false, err
	}
	return s.apply(e, fn, commit)
}

// Upsert is Update that creates the room first when it is missing.
func (s *RoomStore) Upsert(id string, fn MutateFunc, commit CommitFunc) (domain.RoomState, bool, error) {
	id, err := domain.NormalizeRoomID(id)
	if err != nil {
		return domain.RoomState{}, false, err
	}
	e, err := s.acquire(id, true)
	if err != nil {
		return domain.RoomState{}, false, err
	}
	return s.apply(e, fn, commit)
}

// apply runs fn on a locked entry and unlocks it.
func (s *RoomStore) apply(e *entry, fn MutateFunc, commit CommitFunc) (domain.RoomState, bool, error) {
	defer e.mu.Unlock()

	room := e.room
	if err := fn(room); err != nil {
		if room.IsEmpty() {
			s.remove(room.ID, e)
		}
		return domain.RoomState{}, !e.deleted, err
	}

	room.Version++
	st := room.State()
	exists := !room.IsEmpty()
	if !exists {
		s.remove(room.ID, e)
	}
	if commit != nil {
		commit(st, exists)
	}
	return st, exists, nil
}

// acquire returns the entry for id with its mutex held. With create set a
// missing room is registered on the fly.
func (s *RoomStore) acquire(id string, create bool) (*entry, error) {
	for {
		s.mu.RLock()
		e, ok := s.rooms[id]
		s.mu.RUnlock()

		if !ok {
			if !create {
				return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
			}
			s.mu.Lock()
			e, ok = s.rooms[id]
			if !ok {
				e = &entry{room: domain.NewRoom(id, s.now())}
				e.mu.Lock()
				s.rooms[id] = e
				s.mu.Unlock()
				return e, nil
			}
			s.mu.Unlock()
		}

		e.mu.Lock()
		if e.deleted {
			// lost the race with a removal, look the id up again
			e.mu.Unlock()
			continue
		}
		return e, nil
	}
}

// remove must be called with e.mu held.
func (s *RoomStore) remove(id string, e *entry) {
	e.deleted = true
	s.mu.Lock()
	if s.rooms[id] == e {
		delete(s.rooms, id)
	}
	s.mu.Unlock()
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// List returns up to limit rooms ordered by creation time, newest first,
// starting after cursor. The next cursor is empty on the last page.
func (s *RoomStore) List(limit int, cursor string) ([]domain.RoomSummary, string, error) {
	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	rooms := make([]domain.RoomSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			rooms = append(rooms, e.room.Summary())
		}
		e.mu.Unlock()
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})

	if cur != nil {
		start := sort.Search(len(rooms), func(i int) bool {
			return cur.after(rooms[i].CreatedAt, rooms[i].ID)
		})
		rooms = rooms[start:]
	}
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}

	var next string
	if limit > 0 && len(rooms) == limit {
		last := rooms[len(rooms)-1]
		next, _ = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rooms, next, nil
}
