// Package similarity ranks embedded positions by cosine similarity. The scan
// is exact and linear; pools are capped upstream, so no approximate index is
// needed.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
)

var ErrNoEmbedding = errors.New("query has no embedding")

// Hit is one ranked position with its similarity to the query vector.
type Hit struct {
	Position   *matching.Position
	Similarity float64
}

// Cosine computes cosine similarity with float64 accumulation. Vectors of
// unequal length are a caller bug and return a descriptive error; a zero
// magnitude on either side yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Index scores position pools against query vectors.
type Index struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Index {
	return &Index{logger: logger}
}

// Rank returns the top k embedded positions ordered by descending similarity
// to query. Ties keep the incoming pool order. Positions without an embedding
// are skipped; a position whose vector cannot be compared against the query
// drops out of this ranking only.
func (idx *Index) Rank(query []float32, pool []*matching.Position, k int) []Hit {
	hits := make([]Hit, 0, len(pool))
	for _, p := range pool {
		if !p.HasEmbedding() {
			continue
		}
		sim, err := Cosine(query, p.Embedding)
		if err != nil {
			idx.logger.Warn("skipping position with incomparable vector",
				zap.String("position_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		hits = append(hits, Hit{Position: p, Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// SimilarToPosition ranks pool against the given position, excluding the
// position itself from the result.
func (idx *Index) SimilarToPosition(p *matching.Position, pool []*matching.Position, k int) ([]Hit, error) {
	if !p.HasEmbedding() {
		return nil, ErrNoEmbedding
	}

	others := make([]*matching.Position, 0, len(pool))
	for _, candidate := range pool {
		if candidate.ID == p.ID {
			continue
		}
		others = append(others, candidate)
	}

	return idx.Rank(p.Embedding, others, k), nil
}

// RelevantToCandidate ranks pool against the candidate's profile vector.
func (idx *Index) RelevantToCandidate(c *matching.Candidate, pool []*matching.Position, k int) ([]Hit, error) {
	if !c.HasEmbedding() {
		return nil, ErrNoEmbedding
	}
	return idx.Rank(c.Embedding, pool, k), nil
}
