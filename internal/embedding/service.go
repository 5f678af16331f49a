// Package embedding turns candidate and position documents into vectors via
// an AI provider, with content-hash caching and rate-limited batching.
package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eagleai/match-engine/internal/ai"
)

// ErrTextTooShort rejects inputs whose normalized form is too small to carry
// meaning. Nothing is cached for them.
var ErrTextTooShort = errors.New("text is too short to embed")

const (
	defaultBatchSize         = 16
	defaultMinTextLength     = 12
	defaultMaxTextLength     = 8000
	defaultRequestsPerMinute = 60
)

type Config struct {
	BatchSize         int
	MinTextLength     int
	MaxTextLength     int
	Dimensions        int
	RequestsPerMinute int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = defaultMinTextLength
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = defaultMaxTextLength
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	return c
}

// Service embeds normalized texts through the provider, consulting the cache
// first. Provider rounds are paced by a token bucket sized from the
// configured request rate.
type Service struct {
	embedder ai.Embedder
	cache    Cache
	limiter  *rate.Limiter
	logger   *zap.Logger
	cfg      Config
}

func NewService(embedder ai.Embedder, cache Cache, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		embedder: embedder,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		logger:   logger,
		cfg:      cfg,
	}
}

// Embed returns the vector for one text. Too-short input is rejected without
// caching; everything else is cached under the hash of its normalized form.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := normalizeText(text, s.cfg.MaxTextLength)
	if length := utf8.RuneCountInString(normalized); length < s.cfg.MinTextLength {
		return nil, fmt.Errorf("%w: %d characters after normalization", ErrTextTooShort, length)
	}

	key := cacheKey(normalized)
	if vector, ok := s.cache.Get(ctx, key); ok {
		return vector, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{normalized})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for one text", len(vectors))
	}

	vector := vectors[0]
	if err := s.checkDimensions(vector); err != nil {
		return nil, err
	}

	s.cache.Put(ctx, key, vector)
	return vector, nil
}

// EmbedBatch embeds many texts, preserving order. Entry i is nil when text i
// could not be embedded: too short, or its provider round failed. Uncached
// texts go to the provider in rounds of BatchSize; one failed round does not
// stop the others. The returned error is non-nil only when the context ends
// the batch early.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	pendingIndexes := make(map[string][]int)
	pendingTexts := make(map[string]string)
	orderedKeys := make([]string, 0, len(texts))

	for i, text := range texts {
		normalized := normalizeText(text, s.cfg.MaxTextLength)
		if length := utf8.RuneCountInString(normalized); length < s.cfg.MinTextLength {
			s.logger.Debug("skipping text below minimum length",
				zap.Int("index", i),
				zap.Int("length", length),
			)
			continue
		}

		key := cacheKey(normalized)
		if vector, ok := s.cache.Get(ctx, key); ok {
			results[i] = vector
			continue
		}

		if _, seen := pendingIndexes[key]; !seen {
			orderedKeys = append(orderedKeys, key)
			pendingTexts[key] = normalized
		}
		pendingIndexes[key] = append(pendingIndexes[key], i)
	}

	for start := 0; start < len(orderedKeys); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(orderedKeys) {
			end = len(orderedKeys)
		}
		round := orderedKeys[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return results, err
		}

		roundTexts := make([]string, 0, len(round))
		for _, key := range round {
			roundTexts = append(roundTexts, pendingTexts[key])
		}

		vectors, err := s.embedder.EmbedTexts(ctx, roundTexts)
		if err != nil {
			s.logger.Warn("embedding round failed",
				zap.Int("round_size", len(round)),
				zap.Error(err),
			)
			continue
		}
		if len(vectors) != len(round) {
			s.logger.Warn("provider returned wrong vector count",
				zap.Int("expected", len(round)),
				zap.Int("got", len(vectors)),
			)
			continue
		}

		for j, vector := range vectors {
			if err := s.checkDimensions(vector); err != nil {
				s.logger.Warn("dropping vector", zap.Error(err))
				continue
			}
			key := round[j]
			s.cache.Put(ctx, key, vector)
			for _, idx := range pendingIndexes[key] {
				results[idx] = vector
			}
		}
	}

	return results, nil
}

func (s *Service) checkDimensions(vector []float32) error {
	if len(vector) == 0 {
		return errors.New("provider returned an empty vector")
	}
	if s.cfg.Dimensions > 0 && len(vector) != s.cfg.Dimensions {
		return fmt.Errorf("unexpected vector dimensionality: got %d, want %d", len(vector), s.cfg.Dimensions)
	}
	return nil
}

// normalizeText collapses whitespace runs, drops markdown-style decoration,
// squeezes repeated punctuation and truncates to the provider ceiling. Texts
// differing only in such formatting share one cache entry.
func normalizeText(text string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(text))

	var prev rune
	for _, r := range text {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			continue
		}
		if _, ok := volatileRunes[r]; ok {
			continue
		}
		if unicode.IsSpace(r) {
			r = ' '
		}
		if r == ' ' && prev == ' ' {
			continue
		}
		if unicode.IsPunct(r) && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}

	normalized := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(normalized)
		if len(runes) > maxLen {
			normalized = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return normalized
}

// volatileRunes carry formatting, not meaning: markdown emphasis, bullets,
// quoting artifacts.
var volatileRunes = map[rune]struct{}{
	'*': {},
	'#': {},
	'`': {},
	'~': {},
	'_': {},
	'•': {},
	'>': {},
	'|': {},
}

func cacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum[:])
}
