package ideas

import (
	"fmt"
	"sort"

	"github.com/bryan-buckman/ideaboard/internal/model"
)

// SortKey selects the ordering for SortIdeas.
type SortKey string

const (
	SortInsertion SortKey = ""
	SortRating    SortKey = "rating"
	SortVotes     SortKey = "votes"
	SortRecent    SortKey = "recent"
)

// DefaultLeaderboardSize is how many ideas the leaderboard shows by default.
const DefaultLeaderboardSize = 5

// ParseSortKey validates a sort key from user input.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortInsertion, SortRating, SortVotes, SortRecent:
		return k, nil
	default:
		return "", fmt.Errorf("invalid sort %q (want rating, votes or recent)", s)
	}
}

// SortIdeas returns a sorted copy of ideas. Ties keep insertion order.
func SortIdeas(ideas []model.Idea, key SortKey) []model.Idea {
	out := append([]model.Idea(nil), ideas...)
	switch key {
	case SortRating:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	case SortVotes:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Votes > out[j].Votes })
	case SortRecent:
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Leaderboard ranks ideas by votes, then rating, and keeps the top n.
// n <= 0 means DefaultLeaderboardSize.
func Leaderboard(ideas []model.Idea, n int) []model.RankedIdea {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	sorted := append([]model.Idea(nil), ideas...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Votes != sorted[j].Votes {
			return sorted[i].Votes > sorted[j].Votes
		}
		return sorted[i].Rating > sorted[j].Rating
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	ranked := make([]model.RankedIdea, len(sorted))
	for i, idea := range sorted {
		ranked[i] = model.RankedIdea{Rank: i + 1, Idea: idea}
	}
	return ranked
}
