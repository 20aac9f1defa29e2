package ideas

import (
	"fmt"
	"math"

	"github.com/bryan-buckman/ideaboard/internal/model"
)

// Stars converts a 0-100 rating to a 0-5 star count.
func Stars(r int) int {
	return int(math.Round(float64(r) / 20))
}

// ShareText renders the message used when sharing an idea.
func ShareText(idea model.Idea) string {
	return fmt.Sprintf("💡 Check out this startup idea: %q\n\n%s\n\nCategory: %s\nRating: %d/5 stars\n\n🚀 Shared via Ideaboard",
		idea.Name, idea.Description, idea.Tagline, Stars(idea.Rating))
}
