package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

func testCandidate() *matching.Candidate {
	return &matching.Candidate{
		ID:        "cand-1",
		Narrative: "I want to build backend services in a small team",
		Skills:    []matching.Skill{{Name: "go"}, {Name: "postgres"}},
	}
}

func testPosition() *matching.Position {
	return &matching.Position{
		ID:           "pos-1",
		Title:        "Backend Intern",
		Organization: "Acme Labs",
		Description:  "Work on our API platform",
	}
}

func TestRaterParsesFencedResponse(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"score\": 72, \"explanation\": \"solid overlap\"}\n```"}
	rater := NewRater(gen, zap.NewNop(), 0)

	outcome, err := rater.RateAlignment(context.Background(), testCandidate(), testPosition())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Parsed {
		t.Fatalf("expected parsed outcome, raw: %q", outcome.Raw)
	}
	if outcome.Score != 72 {
		t.Fatalf("expected score 72, got %v", outcome.Score)
	}
	if outcome.Explanation != "solid overlap" {
		t.Fatalf("unexpected explanation: %q", outcome.Explanation)
	}
}

func TestRaterCoercesStringScore(t *testing.T) {
	gen := &stubGenerator{response: `{"score": "85", "explanation": "close match"}`}
	rater := NewRater(gen, zap.NewNop(), 0)

	outcome, err := rater.RateAlignment(context.Background(), testCandidate(), testPosition())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Parsed || outcome.Score != 85 {
		t.Fatalf("expected parsed score 85, got %+v", outcome)
	}
}

func TestRaterFindsObjectInProse(t *testing.T) {
	gen := &stubGenerator{
		response: `Sure! Here is my rating: {"score": 40.5, "explanation": "partial"} hope that helps`,
	}
	rater := NewRater(gen, zap.NewNop(), 0)

	outcome, err := rater.RateAlignment(context.Background(), testCandidate(), testPosition())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Parsed || outcome.Score != 40.5 {
		t.Fatalf("expected parsed score 40.5, got %+v", outcome)
	}
}

func TestRaterUnparseableResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I cannot rate this."},
		{"missing score key", `{"explanation": "no score here"}`},
		{"score is garbage", `{"score": "not a number"}`},
		{"broken object", `{"score": 50,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{response: tt.response}
			rater := NewRater(gen, zap.NewNop(), 0)

			outcome, err := rater.RateAlignment(context.Background(), testCandidate(), testPosition())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome.Parsed {
				t.Fatalf("expected unparsed outcome for %q", tt.response)
			}
			if outcome.Raw != tt.response {
				t.Fatalf("raw text should be preserved, got %q", outcome.Raw)
			}
		})
	}
}

func TestRaterPropagatesGeneratorError(t *testing.T) {
	genErr := errors.New("provider unavailable")
	rater := NewRater(&stubGenerator{err: genErr}, zap.NewNop(), 0)

	_, err := rater.RateAlignment(context.Background(), testCandidate(), testPosition())
	if !errors.Is(err, genErr) {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestRaterPromptCarriesProfileAndPosition(t *testing.T) {
	gen := &stubGenerator{response: `{"score": 10, "explanation": "x"}`}
	rater := NewRater(gen, zap.NewNop(), 0)

	candidate := testCandidate()
	position := testPosition()
	if _, err := rater.RateAlignment(context.Background(), candidate, position); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, fragment := range []string{candidate.Narrative, position.Title, position.Description, "go"} {
		if !strings.Contains(gen.lastPrompt, fragment) {
			t.Fatalf("prompt is missing %q:\n%s", fragment, gen.lastPrompt)
		}
	}
	if strings.Contains(gen.lastPrompt, "{{CANDIDATE_JSON}}") || strings.Contains(gen.lastPrompt, "{{POSITION_JSON}}") {
		t.Fatal("prompt placeholders were not replaced")
	}
}

func TestRaterRequiresBothSides(t *testing.T) {
	rater := NewRater(&stubGenerator{}, zap.NewNop(), 0)

	if _, err := rater.RateAlignment(context.Background(), nil, testPosition()); err == nil {
		t.Fatal("expected error for nil candidate")
	}
	if _, err := rater.RateAlignment(context.Background(), testCandidate(), nil); err == nil {
		t.Fatal("expected error for nil position")
	}
}
