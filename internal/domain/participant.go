package domain

import "time"

type Participant struct {
	ID       string
	Name     string
	HasVoted bool
	JoinedAt time.Time
}

// ParticipantView is the wire form of a participant. Vote stays nil until
// the room reveals its votes.
type ParticipantView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	HasVoted bool    `json:"hasVoted"`
	Vote     *string `json:"vote,omitempty"`
}
