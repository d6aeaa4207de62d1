package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is one client connection as seen by the hub.
type Conn interface {
	ID() string
	// Enqueue hands a frame to the connection writer without blocking. It
	// reports false when the frame was dropped.
	Enqueue(frame []byte) bool
	Close() error
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[roomID] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Members returns the number of connections subscribed to roomID.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Broadcast(roomID string, msg Message) {
	h.BroadcastExcept(roomID, nil, msg)
}

// BroadcastExcept encodes msg once and enqueues it for every connection of
// the room but except. A slow connection never delays the others.
func (h *Hub) BroadcastExcept(roomID string, except Conn, msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws encode broadcast failed", "room", roomID, "type", msg.Type, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		if !c.Enqueue(frame) {
			slog.Debug("ws broadcast dropped", "room", roomID, "conn", c.ID(), "type", msg.Type)
		}
	}
}
