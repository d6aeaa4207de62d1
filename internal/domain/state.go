package domain

import "time"

// RoomState is the sanitized snapshot sent to clients. Votes, Statistics and
// every ParticipantView.Vote are left unset while votes are hidden, so they
// are absent from the encoded JSON rather than null.
type RoomState struct {
	ID                 string            `json:"id"`
	Version            uint64            `json:"version"`
	Participants       []ParticipantView `json:"participants"`
	VotesRevealed      bool              `json:"votesRevealed"`
	Votes              map[string]string `json:"votes,omitzero"`
	Statistics         *Statistics       `json:"statistics,omitempty"`
	CurrentDescription string            `json:"currentDescription"`
	VotingHistory      []VotingRound     `json:"votingHistory"`
	VotingStartTime    *time.Time        `json:"votingStartTime"`
}

// RoomSummary is the listing view of a room used by the admin surfaces.
type RoomSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Version       uint64    `json:"version"`
	Participants  int       `json:"participants"`
	VotesRevealed bool      `json:"votesRevealed"`
	Rounds        int       `json:"rounds"`
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Version:       r.Version,
		Participants:  len(r.order),
		VotesRevealed: r.VotesRevealed,
		Rounds:        len(r.History),
	}
}

// State builds the snapshot of the room. Every viewer receives the same
// sanitized copy; raw votes only leave the room once revealed.
func (r *Room) State() RoomState {
	st := RoomState{
		ID:                 r.ID,
		Version:            r.Version,
		Participants:       make([]ParticipantView, 0, len(r.order)),
		VotesRevealed:      r.VotesRevealed,
		CurrentDescription: r.CurrentDescription,
		VotingHistory:      make([]VotingRound, 0, len(r.History)),
	}
	if r.VotingStartTime != nil {
		t := *r.VotingStartTime
		st.VotingStartTime = &t
	}

	var revealed []string
	if r.VotesRevealed {
		st.Votes = make(map[string]string, len(r.votes))
		revealed = make([]string, 0, len(r.votes))
	}

	for _, id := range r.order {
		p := r.participants[id]
		view := ParticipantView{ID: p.ID, Name: p.Name, HasVoted: p.HasVoted}
		if r.VotesRevealed {
			if v, ok := r.votes[id]; ok {
				vote := v
				view.Vote = &vote
				st.Votes[id] = v
				revealed = append(revealed, v)
			}
		}
		st.Participants = append(st.Participants, view)
	}

	if r.VotesRevealed {
		stats := ComputeStatistics(revealed)
		st.Statistics = &stats
	}

	for _, h := range r.History {
		st.VotingHistory = append(st.VotingHistory, h.clone())
	}
	return st
}
