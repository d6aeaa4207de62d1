package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const RoomIDLength = 6

var roomIDPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NormalizeRoomID upper-cases id and checks it against the wire format.
func NormalizeRoomID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !roomIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
	}
	return id, nil
}

// Room holds the authoritative state of one estimation room. It is not safe
// for concurrent use; the store serialises access per room.
type Room struct {
	ID                 string
	CreatedAt          time.Time
	Version            uint64
	VotesRevealed      bool
	CurrentDescription string
	VotingStartTime    *time.Time
	History            []VotingRound

	order        []string // participant ids in join order
	participants map[string]*Participant
	votes        map[string]string
}

func NewRoom(id string, createdAt time.Time) *Room {
	return &Room{
		ID:           id,
		CreatedAt:    createdAt,
		participants: make(map[string]*Participant),
		votes:        make(map[string]string),
	}
}

func (r *Room) ParticipantCount() int { return len(r.order) }

func (r *Room) IsEmpty() bool { return len(r.order) == 0 }

func (r *Room) HasParticipant(userID string) bool {
	_, ok := r.participants[userID]
	return ok
}

// Participant returns a copy of the participant with the given id.
func (r *Room) Participant(userID string) (Participant, bool) {
	p, ok := r.participants[userID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Join adds userID to the room. A repeated join keeps the participant's
// position and vote and only updates the name.
func (r *Room) Join(userID, name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if p, ok := r.participants[userID]; ok {
		p.Name = name
		return nil
	}

	r.participants[userID] = &Participant{ID: userID, Name: name, JoinedAt: now}
	r.order = append(r.order, userID)

	if len(r.order) == 1 && r.VotingStartTime == nil {
		t := now
		r.VotingStartTime = &t
	}
	return nil
}

// Leave removes userID and its vote. It reports whether the user was present.
func (r *Room) Leave(userID string) bool {
	if _, ok := r.participants[userID]; !ok {
		return false
	}
	delete(r.participants, userID)
	delete(r.votes, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Room) Vote(userID, value string) error {
	p, ok := r.participants[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAParticipant, userID)
	}
	if r.VotesRevealed {
		return ErrVotingClosed
	}
	r.votes[userID] = value
	p.HasVoted = true
	return nil
}

func (r *Room) Reveal() {
	r.VotesRevealed = true
}

// Clear ends the current round. Revealed rounds with at least one vote are
// archived into the history first. It returns the archived round, if any.
func (r *Room) Clear(now time.Time, loc *time.Location) *VotingRound {
	var archived *VotingRound
	if r.VotesRevealed && len(r.votes) > 0 {
		round := r.archive(now, loc)
		r.History = append(r.History, round)
		archived = &round
	}

	r.votes = make(map[string]string)
	r.VotesRevealed = false
	r.CurrentDescription = ""
	for _, p := range r.participants {
		p.HasVoted = false
	}

	if len(r.order) > 0 {
		t := now
		r.VotingStartTime = &t
	} else {
		r.VotingStartTime = nil
	}
	return archived
}

func (r *Room) archive(now time.Time, loc *time.Location) VotingRound {
	if loc == nil {
		loc = time.Local
	}

	votes := make(map[string]string, len(r.votes))
	names := make(map[string]string, len(r.votes))
	values := make([]string, 0, len(r.votes))
	for _, id := range r.order {
		v, ok := r.votes[id]
		if !ok {
			continue
		}
		votes[id] = v
		names[id] = r.participants[id].Name
		values = append(values, v)
	}

	var duration int64
	if r.VotingStartTime != nil {
		if d := now.Sub(*r.VotingStartTime); d > 0 {
			duration = int64(d / time.Second)
		}
	}

	description := r.CurrentDescription
	if strings.TrimSpace(description) == "" {
		description = now.In(loc).Format(DescriptionLayout)
	}

	return VotingRound{
		Description:     description,
		Votes:           votes,
		Participants:    names,
		Timestamp:       now,
		Average:         Average(values),
		DurationSeconds: duration,
	}
}

func (r *Room) SetDescription(text string) {
	r.CurrentDescription = text
}

func (r *Room) DeleteHistoryEntry(index int) error {
	if index < 0 || index >= len(r.History) {
		return fmt.Errorf("%w: %d (history has %d entries)", ErrIndexOutOfRange, index, len(r.History))
	}
	r.History = append(r.History[:index:index], r.History[index+1:]...)
	return nil
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	out := &Room{
		ID:                 r.ID,
		CreatedAt:          r.CreatedAt,
		Version:            r.Version,
		VotesRevealed:      r.VotesRevealed,
		CurrentDescription: r.CurrentDescription,
		order:              append([]string(nil), r.order...),
		participants:       make(map[string]*Participant, len(r.participants)),
		votes:              make(map[string]string, len(r.votes)),
	}
	if r.VotingStartTime != nil {
		t := *r.VotingStartTime
		out.VotingStartTime = &t
	}
	for id, p := range r.participants {
		cp := *p
		out.participants[id] = &cp
	}
	for id, v := range r.votes {
		out.votes[id] = v
	}
	if r.History != nil {
		out.History = make([]VotingRound, len(r.History))
		for i, h := range r.History {
			out.History[i] = h.clone()
		}
	}
	return out
}
