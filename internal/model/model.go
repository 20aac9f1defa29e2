// Package model defines shared data structures.
package model

import "time"

// Idea represents a submitted startup idea.
// Field names match the persisted JSON layout.
type Idea struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Tagline     string    `json:"tagline"`
	Description string    `json:"description"`
	Rating      int       `json:"rating"` // 0-100, fixed at creation
	Votes       int       `json:"votes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RankedIdea is an idea with its 1-based leaderboard position.
type RankedIdea struct {
	Rank int `json:"rank"`
	Idea
}

// Storage key constants.
const (
	KeyIdeas = "startup_ideas"
	KeyVotes = "user_votes"
)

// Rating bounds.
const (
	MinRating = 0
	MaxRating = 100
)
