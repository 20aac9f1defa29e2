package rating

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/ideaboard/internal/model"
)

func TestRandomStaysInRange(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		r, err := Random{}.Score(ctx, model.Idea{})
		require.NoError(t, err)
		require.GreaterOrEqual(t, r, 0)
		require.LessOrEqual(t, r, 100)
	}
}

func TestFixed(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		in   Fixed
		want int
	}{
		{80, 80},
		{0, 0},
		{100, 100},
		{-5, 0},
		{250, 100},
	}
	for _, tt := range tests {
		got, err := tt.in.Score(ctx, model.Idea{})
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestScorerFunc(t *testing.T) {
	s := ScorerFunc(func(_ context.Context, idea model.Idea) (int, error) {
		return len(idea.Name), nil
	})
	got, err := s.Score(context.Background(), model.Idea{Name: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}
