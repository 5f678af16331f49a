package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubEmbedder struct {
	calls      [][]string
	dims       int
	err        error
	failOnCall int
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	if s.failOnCall > 0 && len(s.calls) == s.failOnCall {
		return nil, errors.New("round failed")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text, s.dims)
	}
	return out, nil
}

func vectorFor(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec
}

func fastConfig() Config {
	return Config{
		BatchSize:         2,
		MinTextLength:     10,
		Dimensions:        3,
		RequestsPerMinute: 600000,
	}
}

func TestEmbedCachesByNormalizedText(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	service := NewService(embedder, NewMemoryCache(0), fastConfig(), zap.NewNop())
	ctx := context.Background()

	first, err := service.Embed(ctx, "Hello   world, this is\n\nfine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := service.Embed(ctx, "Hello world, this is fine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(embedder.calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(embedder.calls))
	}
	if &first[0] != &second[0] {
		t.Fatal("expected the cached vector to be returned")
	}
}

func TestEmbedRejectsShortText(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	cache := NewMemoryCache(0)
	service := NewService(embedder, cache, fastConfig(), zap.NewNop())

	_, err := service.Embed(context.Background(), "hi")
	if !errors.Is(err, ErrTextTooShort) {
		t.Fatalf("expected ErrTextTooShort, got %v", err)
	}
	if len(embedder.calls) != 0 {
		t.Fatal("provider must not be called for rejected input")
	}
	if cache.Len() != 0 {
		t.Fatal("nothing must be cached for rejected input")
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	embedder := &stubEmbedder{dims: 5}
	cache := NewMemoryCache(0)
	service := NewService(embedder, cache, fastConfig(), zap.NewNop())

	_, err := service.Embed(context.Background(), "a perfectly reasonable text")
	if err == nil {
		t.Fatal("expected dimensionality error")
	}
	if cache.Len() != 0 {
		t.Fatal("mismatched vectors must not be cached")
	}
}

func TestEmbedBatchOrderAndFailures(t *testing.T) {
	embedder := &stubEmbedder{dims: 3, failOnCall: 2}
	service := NewService(embedder, NewMemoryCache(0), fastConfig(), zap.NewNop())

	texts := []string{
		"first document text",
		"hi", // too short
		"second document text plus",
		"third document, unlucky round",
		"first document text", // duplicate of index 0
	}

	vectors, err := service.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(vectors))
	}

	if vectors[0] == nil || vectors[2] == nil {
		t.Fatal("first round vectors should be present")
	}
	if vectors[1] != nil {
		t.Fatal("too-short text must yield nil")
	}
	if vectors[3] != nil {
		t.Fatal("failed round must yield nil")
	}
	if &vectors[4][0] != &vectors[0][0] {
		t.Fatal("duplicate text must reuse the same vector")
	}

	// Two rounds: [first, second] then the failing [third]. The duplicate
	// never reaches the provider.
	if len(embedder.calls) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(embedder.calls))
	}
	if len(embedder.calls[0]) != 2 || len(embedder.calls[1]) != 1 {
		t.Fatalf("unexpected round sizes: %d and %d", len(embedder.calls[0]), len(embedder.calls[1]))
	}
}

func TestEmbedBatchUsesCache(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	service := NewService(embedder, NewMemoryCache(0), fastConfig(), zap.NewNop())
	ctx := context.Background()

	if _, err := service.Embed(ctx, "already cached document"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vectors, err := service.EmbedBatch(ctx, []string{"already cached document", "a brand new document"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0] == nil || vectors[1] == nil {
		t.Fatal("both texts should embed")
	}

	if len(embedder.calls) != 2 {
		t.Fatalf("expected 2 provider calls in total, got %d", len(embedder.calls))
	}
	if len(embedder.calls[1]) != 1 {
		t.Fatalf("cached text must not reach the provider, round was %v", embedder.calls[1])
	}
}

func TestEmbedBatchCancelledContext(t *testing.T) {
	embedder := &stubEmbedder{dims: 3}
	service := NewService(embedder, NewMemoryCache(0), fastConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.EmbedBatch(ctx, []string{"some document that needs the provider"})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:  "collapses whitespace runs",
			input: "go   developer\n\twith  focus",
			want:  "go developer with focus",
		},
		{
			name:  "strips markdown decoration",
			input: "**Go** developer `with` #focus",
			want:  "Go developer with focus",
		},
		{
			name:  "squeezes repeated punctuation",
			input: "great fit!!! really---truly",
			want:  "great fit! really-truly",
		},
		{
			name:   "truncates to ceiling",
			input:  "abcdef ghij",
			maxLen: 6,
			want:   "abcdef",
		},
		{
			name:  "drops control characters",
			input: "plain\x00text\x07here",
			want:  "plaintexthere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeText(tt.input, tt.maxLen); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
