package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
	"github.com/cwrk-planet/pointing-poker/internal/service"
	"github.com/cwrk-planet/pointing-poker/internal/store"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	cap    int
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.cap > 0 && len(c.frames) >= c.cap) {
		c.closed = true
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns and forgets every frame received so far.
func (c *fakeConn) drain(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	c.frames = nil
	return out
}

func ack(t *testing.T, f frame) AckPayload {
	t.Helper()
	require.Equal(t, TypeAck, f.Type)
	var a AckPayload
	require.NoError(t, json.Unmarshal(f.Payload, &a))
	return a
}

func state(t *testing.T, raw json.RawMessage) domain.RoomState {
	t.Helper()
	var st domain.RoomState
	require.NoError(t, json.Unmarshal(raw, &st))
	return st
}

type harness struct {
	router *Router
	hub    *Hub
	store  *store.RoomStore
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	rooms := store.New()
	svc := service.NewRoomService(rooms, service.WithLocation(time.UTC))
	hub := NewHub()
	return &harness{router: NewRouter(svc, hub, cfg), hub: hub, store: rooms}
}

func (h *harness) send(s *Session, typ string, payload any) {
	raw, _ := json.Marshal(payload)
	data, _ := json.Marshal(Request{ID: "req-" + typ, Type: typ, Payload: raw})
	h.router.Dispatch(context.Background(), s, data)
}

func TestRouter_ScenarioAB12C3(t *testing.T) {
	h := newHarness(t, Config{})
	alice, bob := newFakeConn("U1"), newFakeConn("U2")
	as, bs := h.router.NewSession(alice), h.router.NewSession(bob)

	h.send(as, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Alice"})
	frames := alice.drain(t)
	require.Len(t, frames, 1)
	a := ack(t, frames[0])
	assert.True(t, a.Success)
	assert.Equal(t, "AB12C3", a.RoomID)
	assert.Equal(t, "U1", a.UserID)
	require.NotNil(t, a.RoomState)
	assert.Equal(t, "req-join-room", frames[0].ID)

	h.send(bs, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Bob"})
	assert.True(t, ack(t, bob.drain(t)[0]).Success)
	frames = alice.drain(t)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeUserJoined, frames[0].Type)
	var joined UserJoinedPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &joined))
	assert.Equal(t, "U2", joined.UserID)
	assert.Equal(t, "Bob", joined.UserName)
	assert.Len(t, joined.RoomState.Participants, 2)

	h.send(as, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": "5"})
	h.send(bs, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": 8})
	for _, f := range append(alice.drain(t), bob.drain(t)...) {
		assert.NotContains(t, string(f.Payload), `"vote"`)
		assert.NotContains(t, string(f.Payload), `"votes"`)
	}

	h.send(as, ActionRevealVotes, RoomPayload{RoomID: "AB12C3"})
	for _, c := range []*fakeConn{alice, bob} {
		frames := c.drain(t)
		var updated *domain.RoomState
		for _, f := range frames {
			if f.Type == TypeRoomUpdated {
				st := state(t, f.Payload)
				updated = &st
			}
		}
		require.NotNil(t, updated, "%s must receive room-updated", c.id)
		assert.Equal(t, map[string]string{"U1": "5", "U2": "8"}, updated.Votes)
	}

	h.send(as, ActionClearVotes, RoomPayload{RoomID: "AB12C3"})
	frames = bob.drain(t)
	require.Len(t, frames, 1)
	st := state(t, frames[0].Payload)
	require.Len(t, st.VotingHistory, 1)
	require.NotNil(t, st.VotingHistory[0].Average)
	assert.Equal(t, 6.5, *st.VotingHistory[0].Average)
	for _, p := range st.Participants {
		assert.False(t, p.HasVoted)
	}
	alice.drain(t)

	h.router.Disconnect(context.Background(), bs)
	frames = alice.drain(t)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeUserLeft, frames[0].Type)
	var left UserLeftPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &left))
	assert.Equal(t, "U2", left.UserID)
	assert.Len(t, left.RoomState.Participants, 1)
	assert.True(t, h.store.RoomExists("AB12C3"))

	h.send(as, ActionLeaveRoom, RoomPayload{RoomID: "AB12C3"})
	assert.True(t, ack(t, alice.drain(t)[0]).Success)
	assert.False(t, h.store.RoomExists("AB12C3"))
	assert.Zero(t, h.hub.Members("AB12C3"))
}

func TestRouter_CreateRoomRepliesOnlyToCreator(t *testing.T) {
	h := newHarness(t, Config{})
	c := newFakeConn("U1")
	s := h.router.NewSession(c)

	h.send(s, ActionCreateRoom, CreateRoomPayload{UserName: "Alice"})
	frames := c.drain(t)
	require.Len(t, frames, 1)
	a := ack(t, frames[0])
	require.True(t, a.Success)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, a.RoomID)
	assert.Equal(t, a.RoomID, s.RoomID())
	require.NotNil(t, a.RoomState)
	assert.Len(t, a.RoomState.Participants, 1)
	assert.Equal(t, 1, h.hub.Members(a.RoomID))
}

func TestRouter_JoiningAnotherRoomLeavesCurrent(t *testing.T) {
	h := newHarness(t, Config{})
	c, other := newFakeConn("U1"), newFakeConn("U2")
	s, os := h.router.NewSession(c), h.router.NewSession(other)

	h.send(s, ActionJoinRoom, JoinRoomPayload{RoomID: "AAAAAA", UserName: "Alice"})
	h.send(os, ActionJoinRoom, JoinRoomPayload{RoomID: "AAAAAA", UserName: "Bob"})
	other.drain(t)

	h.send(s, ActionJoinRoom, JoinRoomPayload{RoomID: "bbbbbb", UserName: "Alice"})
	assert.Equal(t, "BBBBBB", s.RoomID())

	frames := other.drain(t)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeUserLeft, frames[0].Type)

	room, err := h.store.GetRoom("AAAAAA")
	require.NoError(t, err)
	assert.False(t, room.HasParticipant("U1"))
	assert.Equal(t, 1, h.hub.Members("AAAAAA"))
	assert.Equal(t, 1, h.hub.Members("BBBBBB"))
}

func TestRouter_ErrorCodes(t *testing.T) {
	h := newHarness(t, Config{})
	c := newFakeConn("U1")
	s := h.router.NewSession(c)
	outsider := h.router.NewSession(newFakeConn("U9"))

	h.send(s, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Alice"})
	c.drain(t)

	tests := []struct {
		name    string
		session *Session
		action  string
		payload any
		code    string
	}{
		{"vote in missing room", s, ActionSubmitVote, map[string]any{"roomId": "ZZZZZZ", "vote": "3"}, CodeRoomNotFound},
		{"vote by outsider", outsider, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": "3"}, CodeNotAParticipant},
		{"reveal missing room", s, ActionRevealVotes, RoomPayload{RoomID: "ZZZZZZ"}, CodeRoomNotFound},
		{"clear missing room", s, ActionClearVotes, RoomPayload{RoomID: "ZZZZZZ"}, CodeRoomNotFound},
		{"describe missing room", s, ActionSetDescription, SetDescriptionPayload{RoomID: "ZZZZZZ"}, CodeRoomNotFound},
		{"delete out of range", s, ActionDeleteHistory, map[string]any{"roomId": "AB12C3", "index": 3}, CodeIndexOutOfRange},
		{"delete without index", s, ActionDeleteHistory, map[string]any{"roomId": "AB12C3"}, CodeBadRequest},
		{"join malformed id", s, ActionJoinRoom, JoinRoomPayload{RoomID: "A-1", UserName: "Alice"}, CodeInvalidRoomID},
		{"join without name", s, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: " "}, CodeBadRequest},
		{"empty vote", s, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": ""}, CodeBadRequest},
		{"bool vote", s, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": true}, CodeBadRequest},
		{"unknown action", s, "dance", RoomPayload{}, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.send(tt.session, tt.action, tt.payload)
			frames := tt.session.conn.(*fakeConn).drain(t)
			require.Len(t, frames, 1)
			a := ack(t, frames[0])
			assert.False(t, a.Success)
			assert.Equal(t, tt.code, a.Code)
			assert.NotEmpty(t, a.Error)
		})
	}

	h.send(s, ActionRevealVotes, RoomPayload{RoomID: "AB12C3"})
	c.drain(t)
	h.send(s, ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": "3"})
	a := ack(t, c.drain(t)[0])
	assert.Equal(t, CodeVotingClosed, a.Code)

	h.router.Dispatch(context.Background(), s, []byte("{not json"))
	a = ack(t, c.drain(t)[0])
	assert.Equal(t, CodeBadRequest, a.Code)

	st, err := h.store.State("AB12C3")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Version, "rejected actions must not mutate the room")
}

func TestRouter_LeaveForeignRoomIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	c := newFakeConn("U1")
	s := h.router.NewSession(c)
	h.send(s, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Alice"})
	c.drain(t)

	h.send(s, ActionLeaveRoom, RoomPayload{RoomID: "ZZZZZZ"})
	a := ack(t, c.drain(t)[0])
	assert.True(t, a.Success)
	assert.Equal(t, "AB12C3", s.RoomID())
	assert.True(t, h.store.RoomExists("AB12C3"))
}

func TestRouter_RateLimit(t *testing.T) {
	h := newHarness(t, Config{RateLimit: 0.001, RateBurst: 2})
	c := newFakeConn("U1")
	s := h.router.NewSession(c)

	h.send(s, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Alice"})
	h.send(s, ActionSetDescription, SetDescriptionPayload{RoomID: "AB12C3", Description: "x"})
	h.send(s, ActionSetDescription, SetDescriptionPayload{RoomID: "AB12C3", Description: "y"})

	var acks []AckPayload
	for _, f := range c.drain(t) {
		if f.Type == TypeAck {
			acks = append(acks, ack(t, f))
		}
	}
	require.Len(t, acks, 3)
	assert.True(t, acks[0].Success)
	assert.True(t, acks[1].Success)
	assert.Equal(t, CodeRateLimited, acks[2].Code)

	st, err := h.store.State("AB12C3")
	require.NoError(t, err)
	assert.Equal(t, "x", st.CurrentDescription)
}

func TestRouter_StaleConnectionDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, Config{})
	stale := newFakeConn("U1")
	stale.cap = 1
	ok := newFakeConn("U2")
	ss, os := h.router.NewSession(stale), h.router.NewSession(ok)

	h.send(ss, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Slow"})
	h.send(os, ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "Fast"})
	ok.drain(t)

	for i := range 5 {
		h.send(os, ActionSetDescription, SetDescriptionPayload{RoomID: "AB12C3", Description: fmt.Sprint(i)})
	}

	frames := ok.drain(t)
	var updates int
	for _, f := range frames {
		if f.Type == TypeRoomUpdated {
			updates++
		}
	}
	assert.Equal(t, 5, updates)

	st, err := h.store.State("AB12C3")
	require.NoError(t, err)
	assert.Equal(t, "4", st.CurrentDescription)
	assert.True(t, stale.closed)
}

func TestRouter_ConcurrentVotesConverge(t *testing.T) {
	h := newHarness(t, Config{})
	const n = 20
	conns := make([]*fakeConn, n)
	sessions := make([]*Session, n)
	for i := range n {
		conns[i] = newFakeConn(fmt.Sprintf("U%d", i))
		sessions[i] = h.router.NewSession(conns[i])
		h.send(sessions[i], ActionJoinRoom, JoinRoomPayload{RoomID: "AB12C3", UserName: "User"})
	}
	for _, c := range conns {
		c.drain(t)
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.send(sessions[i], ActionSubmitVote, map[string]any{"roomId": "AB12C3", "vote": "3"})
		}()
	}
	wg.Wait()

	// every connection sees the same final snapshot as its last room-updated
	var last []uint64
	for _, c := range conns {
		var v uint64
		for _, f := range c.drain(t) {
			if f.Type == TypeRoomUpdated {
				st := state(t, f.Payload)
				assert.Greater(t, st.Version, v, "versions must increase")
				v = st.Version
			}
		}
		last = append(last, v)
	}
	for _, v := range last {
		assert.Equal(t, uint64(2*n), v)
	}
}
