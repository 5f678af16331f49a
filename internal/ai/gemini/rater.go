package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/ai"
	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/utils"
)

type contentGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Rater asks Gemini how well a candidate narrative aligns with a position
// description and parses the JSON answer defensively.
type Rater struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

func NewRater(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Rater {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Rater{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (r *Rater) RateAlignment(ctx context.Context, candidate *matching.Candidate, position *matching.Position) (*ai.RatingOutcome, error) {
	if candidate == nil {
		return nil, fmt.Errorf("candidate is required")
	}
	if position == nil {
		return nil, fmt.Errorf("position is required")
	}

	candidatePayload := map[string]any{
		"narrative": candidate.Narrative,
		"skills":    candidate.SkillNames(),
	}

	candidateJSON, err := json.MarshalIndent(candidatePayload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal candidate payload: %w", err)
	}

	positionPayload := map[string]any{
		"title":        position.Title,
		"organization": position.Organization,
		"description":  position.Description,
		"skills":       position.Skills,
	}

	positionJSON, err := json.MarshalIndent(positionPayload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal position payload: %w", err)
	}

	prompt := buildPrompt(string(candidateJSON), string(positionJSON))

	r.logger.Debug("gemini rating request",
		zap.String("candidate_id", candidate.ID),
		zap.String("position_id", position.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini rating response",
		zap.String("candidate_id", candidate.ID),
		zap.String("position_id", position.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	outcome := parseRating(raw)
	if !outcome.Parsed {
		r.logger.Warn("gemini response held no usable rating",
			zap.String("candidate_id", candidate.ID),
			zap.String("position_id", position.ID),
			zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
		)
	}

	return outcome, nil
}

func buildPrompt(candidateJSON, positionJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Candidate:\n{{CANDIDATE_JSON}}\n\nPosition:\n{{POSITION_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{CANDIDATE_JSON}}", candidateJSON)
	prompt = strings.ReplaceAll(prompt, "{{POSITION_JSON}}", positionJSON)
	return prompt
}

type ratingPayload struct {
	Score       float64 `mapstructure:"score"`
	Explanation string  `mapstructure:"explanation"`
}

// parseRating never fails outright: a response without a usable rating comes
// back as an unparsed outcome carrying the raw text.
func parseRating(raw string) *ai.RatingOutcome {
	unparsed := &ai.RatingOutcome{Parsed: false, Raw: raw}

	data, ok := firstJSONObject(extractJSON(raw))
	if !ok {
		return unparsed
	}

	if _, present := data["score"]; !present {
		return unparsed
	}

	var payload ratingPayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return unparsed
	}
	if err := decoder.Decode(data); err != nil {
		return unparsed
	}

	if math.IsNaN(payload.Score) || math.IsInf(payload.Score, 0) {
		return unparsed
	}

	return &ai.RatingOutcome{
		Parsed:      true,
		Score:       payload.Score,
		Explanation: strings.TrimSpace(payload.Explanation),
		Raw:         raw,
	}
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// firstJSONObject scans for the first decodable JSON object in raw. Models
// wrap answers in prose often enough that a plain Unmarshal is not enough.
func firstJSONObject(raw string) (map[string]any, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		decoder := json.NewDecoder(strings.NewReader(raw[i:]))
		var data map[string]any
		if err := decoder.Decode(&data); err == nil {
			return data, true
		}
	}
	return nil, false
}
