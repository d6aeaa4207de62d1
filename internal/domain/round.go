package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DescriptionLayout formats the fallback description of an untitled round,
// e.g. "Oct 14, 03:04 PM".
const DescriptionLayout = "Jan 2, 03:04 PM"

// VotingRound is an archived, immutable round of the room history.
type VotingRound struct {
	Description     string            `json:"description"`
	Votes           map[string]string `json:"votes"`
	Participants    map[string]string `json:"participants"` // userID -> name at archive time
	Timestamp       time.Time         `json:"timestamp"`
	Average         *float64          `json:"average"`
	DurationSeconds int64             `json:"durationSeconds"`
}

func (r VotingRound) clone() VotingRound {
	out := r
	out.Votes = make(map[string]string, len(r.Votes))
	for k, v := range r.Votes {
		out.Votes[k] = v
	}
	out.Participants = make(map[string]string, len(r.Participants))
	for k, v := range r.Participants {
		out.Participants[k] = v
	}
	if r.Average != nil {
		avg := *r.Average
		out.Average = &avg
	}
	return out
}

// Statistics summarises a set of revealed votes.
type Statistics struct {
	Average      *float64       `json:"average"`
	MostCommon   *string        `json:"mostCommon"`
	Distribution map[string]int `json:"distribution"`
}

// NumericVote parses a vote as a finite number. Tokens such as "?" or "+"
// are not numeric.
func NumericVote(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Average returns the mean of the numeric votes rounded to one decimal, or
// nil when none of them is numeric.
func Average(votes []string) *float64 {
	var (
		sum float64
		n   int
	)
	for _, v := range votes {
		if f, ok := NumericVote(v); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*10) / 10
	return &avg
}

// ComputeStatistics builds the distribution of votes. Ties for the most
// common vote go to the value that sorts first.
func ComputeStatistics(votes []string) Statistics {
	dist := make(map[string]int, len(votes))
	for _, v := range votes {
		if v == "" {
			continue
		}
		dist[v]++
	}

	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var most *string
	best := 0
	for _, k := range keys {
		if dist[k] > best {
			best = dist[k]
			v := k
			most = &v
		}
	}

	return Statistics{
		Average:      Average(votes),
		MostCommon:   most,
		Distribution: dist,
	}
}
