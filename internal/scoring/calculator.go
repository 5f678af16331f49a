// Package scoring computes the weighted compatibility score between one
// candidate and one position.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/ai"
	"github.com/eagleai/match-engine/internal/matching"
)

const (
	weightSkills     = 0.40
	weightCategory   = 0.20
	weightExperience = 0.15
	weightLocation   = 0.10
	weightContent    = 0.15

	// neutralScore applies whenever a dimension has nothing to say: missing
	// preferences, missing skills, unknown graduation year, or a provider
	// that failed to answer.
	neutralScore = 50
)

// Breakdown carries the five sub-scores and the final weighted score, all
// integers in [0,100].
type Breakdown struct {
	Skills     int `json:"skills"`
	Category   int `json:"category"`
	Experience int `json:"experience"`
	Location   int `json:"location"`
	Content    int `json:"content"`
	Total      int `json:"total"`
}

// Calculator scores candidate/position pairings. Provider failures on the
// content dimension degrade to the neutral score and never fail a pairing.
type Calculator struct {
	rater  ai.Rater
	logger *zap.Logger
}

func NewCalculator(rater ai.Rater, logger *zap.Logger) *Calculator {
	return &Calculator{rater: rater, logger: logger}
}

// Score computes the weighted score for one pairing.
func (c *Calculator) Score(ctx context.Context, candidate *matching.Candidate, position *matching.Position) (*Breakdown, error) {
	if candidate == nil {
		return nil, fmt.Errorf("candidate is required")
	}
	if position == nil {
		return nil, fmt.Errorf("position is required")
	}

	breakdown := &Breakdown{
		Skills:     skillsScore(candidate, position),
		Category:   categoryScore(candidate.Preferences, position.Categories),
		Experience: experienceScore(candidate, position.ExperienceTier),
		Location:   locationScore(candidate.Preferences, position),
		Content:    c.contentScore(ctx, candidate, position),
	}

	weighted := weightSkills*float64(breakdown.Skills) +
		weightCategory*float64(breakdown.Category) +
		weightExperience*float64(breakdown.Experience) +
		weightLocation*float64(breakdown.Location) +
		weightContent*float64(breakdown.Content)

	breakdown.Total = clampScore(int(math.Round(weighted)))

	c.logger.Debug("score breakdown",
		zap.String("candidate_id", candidate.ID),
		zap.String("position_id", position.ID),
		zap.Int("skills", breakdown.Skills),
		zap.Int("category", breakdown.Category),
		zap.Int("experience", breakdown.Experience),
		zap.Int("location", breakdown.Location),
		zap.Int("content", breakdown.Content),
		zap.Int("total", breakdown.Total),
	)

	return breakdown, nil
}

// skillsScore is the fraction of the position's required skills matched by
// any candidate skill name, substring in either direction, case-insensitive.
func skillsScore(candidate *matching.Candidate, position *matching.Position) int {
	required := normalizeTerms(position.Skills)
	declared := normalizeTerms(candidate.SkillNames())

	if len(required) == 0 || len(declared) == 0 {
		return neutralScore
	}

	matched := 0
	for _, req := range required {
		for _, have := range declared {
			if strings.Contains(have, req) || strings.Contains(req, have) {
				matched++
				break
			}
		}
	}

	return int(math.Round(float64(matched) / float64(len(required)) * 100))
}

func categoryScore(prefs *matching.Preferences, positionCategories []string) int {
	if prefs == nil || len(normalizeTerms(prefs.Categories)) == 0 {
		return neutralScore
	}

	preferred := normalizeTerms(prefs.Categories)
	offered := normalizeTerms(positionCategories)
	for _, want := range preferred {
		for _, have := range offered {
			if want == have {
				return 100
			}
		}
	}
	return 0
}

// experienceScore maps the distance to the candidate's target graduation year
// onto the position's experience tier. Entry roles fit up to two years before
// graduation, mid roles up to one, senior roles only after it.
func experienceScore(candidate *matching.Candidate, tier matching.ExperienceTier) int {
	years, known := candidate.YearsToGraduation(time.Now().UTC())
	if !known {
		return neutralScore
	}

	switch {
	case tier == matching.TierEntry && years <= 2:
		return 100
	case tier == matching.TierMid && years <= 1:
		return 80
	case tier == matching.TierSenior && years <= 0:
		return 60
	default:
		return neutralScore
	}
}

// locationScore treats a remote position as satisfying every location
// preference, declared or not. The neutral fallback applies only to onsite
// positions.
func locationScore(prefs *matching.Preferences, position *matching.Position) int {
	if position.Remote {
		return 100
	}

	if prefs == nil || (len(normalizeTerms(prefs.Locations)) == 0 && !prefs.Remote) {
		return neutralScore
	}

	positionLocation := strings.ToLower(strings.TrimSpace(position.Location))
	for _, want := range normalizeTerms(prefs.Locations) {
		if positionLocation != "" && strings.Contains(positionLocation, want) {
			return 100
		}
	}
	return 0
}

func (c *Calculator) contentScore(ctx context.Context, candidate *matching.Candidate, position *matching.Position) int {
	outcome, err := c.rater.RateAlignment(ctx, candidate, position)
	if err != nil {
		c.logger.Warn("content rating failed, using neutral score",
			zap.String("candidate_id", candidate.ID),
			zap.String("position_id", position.ID),
			zap.Error(err),
		)
		return neutralScore
	}

	if !outcome.Parsed {
		return neutralScore
	}

	return clampScore(int(math.Round(outcome.Score)))
}

// normalizeTerms lowercases and trims, dropping empties so that blank entries
// never substring-match everything.
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		out = append(out, term)
	}
	return out
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
