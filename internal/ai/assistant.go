package ai

import (
	"context"

	"github.com/eagleai/match-engine/internal/matching"
)

// RatingOutcome is the tagged result of a content-alignment request. Parsed
// is false when the provider answered but the answer held no usable rating;
// Raw always carries the provider text for diagnostics. Callers must handle
// both variants.
type RatingOutcome struct {
	Parsed      bool
	Score       float64
	Explanation string
	Raw         string
}

// Rater scores how well a candidate's narrative aligns with a position
// description, 0 to 100.
type Rater interface {
	RateAlignment(ctx context.Context, candidate *matching.Candidate, position *matching.Position) (*RatingOutcome, error)
}

// Embedder turns texts into vectors. The returned slice preserves input
// order and has one vector per input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
