package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/cwrk-planet/pointing-poker/internal/domain"
)

// Действия, которые клиент присылает в WS
const (
	ActionCreateRoom     = "create-room"
	ActionJoinRoom       = "join-room"
	ActionSubmitVote     = "submit-vote"
	ActionRevealVotes    = "reveal-votes"
	ActionClearVotes     = "clear-votes"
	ActionSetDescription = "set-description"
	ActionDeleteHistory  = "delete-history"
	ActionLeaveRoom      = "leave-room"
)

// События, которые сервер рассылает участникам комнаты
const (
	TypeAck         = "ack"          // ответ на конкретное действие
	TypeRoomUpdated = "room-updated" // новый снапшот комнаты
	TypeUserJoined  = "user-joined"  // пользователь присоединился
	TypeUserLeft    = "user-left"    // пользователь покинул
)

// Коды ошибок в ack
const (
	CodeRoomNotFound    = "ROOM_NOT_FOUND"
	CodeNotAParticipant = "NOT_A_PARTICIPANT"
	CodeVotingClosed    = "VOTING_CLOSED"
	CodeIndexOutOfRange = "INDEX_OUT_OF_RANGE"
	CodeInvalidRoomID   = "INVALID_ROOM_ID"
	CodeBadRequest      = "BAD_REQUEST"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Message is an outbound frame.
type Message struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Request is an inbound frame. ID is echoed back in the ack.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CreateRoomPayload struct {
	UserName string `json:"userName"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SubmitVotePayload struct {
	RoomID string    `json:"roomId"`
	Vote   VoteValue `json:"vote"`
}

type SetDescriptionPayload struct {
	RoomID      string `json:"roomId"`
	Description string `json:"description"`
}

type DeleteHistoryPayload struct {
	RoomID string `json:"roomId"`
	Index  *int   `json:"index"`
}

type AckPayload struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	RoomID    string            `json:"roomId,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	RoomState *domain.RoomState `json:"roomState,omitempty"`
}

type UserJoinedPayload struct {
	UserID    string           `json:"userId"`
	UserName  string           `json:"userName"`
	RoomState domain.RoomState `json:"roomState"`
}

type UserLeftPayload struct {
	UserID    string           `json:"userId"`
	RoomState domain.RoomState `json:"roomState"`
}

var errEmptyVote = errors.New("vote must be a non-empty string or number")

// VoteValue accepts both "5" and 5 on the wire; votes are kept as text.
type VoteValue string

func (v *VoteValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return errEmptyVote
		}
		*v = VoteValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errEmptyVote
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return errEmptyVote
	}
	*v = VoteValue(n.String())
	return nil
}
