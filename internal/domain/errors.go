package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAParticipant = errors.New("user not in the room")
	ErrVotingClosed    = errors.New("voting closed")
	ErrIndexOutOfRange = errors.New("history index out of range")
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrEmptyName       = errors.New("user name is required")
)
