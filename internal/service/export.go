package service

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const unknownUser = "Unknown"

// HistoryExport is the downloadable document with every archived round.
type HistoryExport struct {
	RoomID      string          `json:"roomId"`
	ExportDate  time.Time       `json:"exportDate"`
	TotalRounds int             `json:"totalRounds"`
	Rounds      []ExportedRound `json:"rounds"`
}

type ExportedRound struct {
	RoundNumber int            `json:"roundNumber"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Duration    string         `json:"duration"`
	Average     *float64       `json:"average"`
	Votes       []ExportedVote `json:"votes"`
}

type ExportedVote struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Vote     string `json:"vote"`
}

// FileName is the attachment name, e.g. voting-results-AB12C3-2025-03-04.json.
func (e HistoryExport) FileName() string {
	return fmt.Sprintf("voting-results-%s-%s.json", e.RoomID, e.ExportDate.UTC().Format(time.DateOnly))
}

func (s *RoomService) ExportHistory(ctx context.Context, roomID string) (HistoryExport, error) {
	st, err := s.GetRoomState(ctx, roomID)
	if err != nil {
		return HistoryExport{}, err
	}

	out := HistoryExport{
		RoomID:      st.ID,
		ExportDate:  s.now().UTC(),
		TotalRounds: len(st.VotingHistory),
		Rounds:      make([]ExportedRound, 0, len(st.VotingHistory)),
	}
	for i, round := range st.VotingHistory {
		votes := make([]ExportedVote, 0, len(round.Votes))
		for userID, vote := range round.Votes {
			name, ok := round.Participants[userID]
			if !ok {
				name = unknownUser
			}
			votes = append(votes, ExportedVote{UserID: userID, UserName: name, Vote: vote})
		}
		sort.Slice(votes, func(a, b int) bool {
			if votes[a].UserName != votes[b].UserName {
				return votes[a].UserName < votes[b].UserName
			}
			return votes[a].UserID < votes[b].UserID
		})

		out.Rounds = append(out.Rounds, ExportedRound{
			RoundNumber: i + 1,
			Description: round.Description,
			Timestamp:   round.Timestamp,
			Duration:    fmt.Sprintf("%ds", round.DurationSeconds),
			Average:     round.Average,
			Votes:       votes,
		})
	}
	return out, nil
}
