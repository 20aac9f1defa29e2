// Package rating assigns the 0-100 score an idea carries from submission on.
package rating

import (
	"context"
	"math/rand"

	"github.com/bryan-buckman/ideaboard/internal/model"
)

// Scorer rates a new idea. Implementations see the idea as it will be
// stored, id included, with Rating and Votes still zero.
type Scorer interface {
	Score(ctx context.Context, idea model.Idea) (int, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, idea model.Idea) (int, error)

func (f ScorerFunc) Score(ctx context.Context, idea model.Idea) (int, error) {
	return f(ctx, idea)
}

// Random is a placeholder evaluator returning a uniform integer in [0, 100].
type Random struct{}

func (Random) Score(_ context.Context, _ model.Idea) (int, error) {
	return rand.Intn(model.MaxRating + 1), nil
}

// Fixed always returns the same score.
type Fixed int

func (f Fixed) Score(_ context.Context, _ model.Idea) (int, error) {
	return Clamp(int(f)), nil
}

// Clamp bounds r to the valid rating range.
func Clamp(r int) int {
	return max(model.MinRating, min(r, model.MaxRating))
}
