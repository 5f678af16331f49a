package selection

import (
	"context"
	"strings"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/similarity"
	"github.com/eagleai/match-engine/internal/store"
)

type semanticStep struct {
	index     *similarity.Index
	candidate *matching.Candidate
	keep      int
}

// NewSemantic creates a step that keeps the positions most similar to the
// candidate's embedding. When no position in the pool carries an embedding the
// pool passes through unchanged and later steps still bound it.
func NewSemantic(index *similarity.Index, candidate *matching.Candidate, keep int) Step {
	return &semanticStep{index: index, candidate: candidate, keep: keep}
}

func (s *semanticStep) Name() string { return "semantic_retrieval" }

func (s *semanticStep) Apply(_ context.Context, pool *matching.Positions) (*matching.Positions, Outcome, error) {
	initial := pool.Len()

	hits, err := s.index.RelevantToCandidate(s.candidate, pool.Items, s.keep)
	if err != nil {
		return pool, Outcome{}, err
	}
	if len(hits) == 0 {
		return pool, Outcome{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept := make([]*matching.Position, 0, len(hits))
	for _, hit := range hits {
		kept = append(kept, hit.Position)
	}
	pool.Items = kept

	return pool, Outcome{Initial: initial, Dropped: initial - pool.Len(), Left: pool.Len()}, nil
}

type preferenceStep struct {
	candidate *matching.Candidate
}

// NewPreferences creates a step that keeps positions agreeing with the
// candidate's declared preferences. Only a candidate without declared
// preferences keeps the full pool; declared preferences that match nothing
// leave the pool empty.
func NewPreferences(candidate *matching.Candidate) Step {
	return &preferenceStep{candidate: candidate}
}

func (s *preferenceStep) Name() string { return "preferences" }

func (s *preferenceStep) Apply(_ context.Context, pool *matching.Positions) (*matching.Positions, Outcome, error) {
	initial := pool.Len()

	prefs := s.candidate.Preferences
	if !declaresAny(prefs) {
		return pool, Outcome{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept := make([]*matching.Position, 0, len(pool.Items))
	for _, position := range pool.Items {
		if matchesPreferences(prefs, position) {
			kept = append(kept, position)
		}
	}
	pool.Items = kept

	return pool, Outcome{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}

func declaresAny(p *matching.Preferences) bool {
	if p == nil {
		return false
	}
	return len(p.Categories) > 0 || len(p.EmploymentTypes) > 0 || len(p.Locations) > 0 || p.Remote
}

// matchesPreferences checks every dimension the candidate declared. An
// undeclared dimension never constrains the pool.
func matchesPreferences(p *matching.Preferences, position *matching.Position) bool {
	if len(p.Categories) > 0 && !termsOverlap(p.Categories, position.Categories) {
		return false
	}
	if len(p.EmploymentTypes) > 0 && !containsFold(p.EmploymentTypes, position.EmploymentType) {
		return false
	}
	if p.Remote || len(p.Locations) > 0 {
		if !locationAgrees(p, position) {
			return false
		}
	}
	return true
}

// locationAgrees treats a remote position as satisfying any location
// preference.
func locationAgrees(p *matching.Preferences, position *matching.Position) bool {
	if position.Remote {
		return true
	}

	location := strings.ToLower(strings.TrimSpace(position.Location))
	if location == "" {
		return false
	}
	for _, want := range p.Locations {
		want = strings.ToLower(strings.TrimSpace(want))
		if want != "" && strings.Contains(location, want) {
			return true
		}
	}
	return false
}

func termsOverlap(left, right []string) bool {
	for _, a := range left {
		if containsFold(right, a) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, item := range haystack {
		if strings.EqualFold(strings.TrimSpace(item), needle) {
			return true
		}
	}
	return false
}

type excludeMatchedStep struct {
	matches     store.MatchStore
	candidateID string
}

// NewExcludeMatched creates a step that removes positions already matched to
// the candidate.
func NewExcludeMatched(matches store.MatchStore, candidateID string) Step {
	return &excludeMatchedStep{matches: matches, candidateID: candidateID}
}

func (s *excludeMatchedStep) Name() string { return "exclude_matched" }

func (s *excludeMatchedStep) Apply(ctx context.Context, pool *matching.Positions) (*matching.Positions, Outcome, error) {
	initial := pool.Len()

	ids, err := s.matches.MatchedPositionIDs(ctx, s.candidateID)
	if err != nil {
		return pool, Outcome{}, err
	}

	removed := pool.ExcludeIDs(ids)

	return pool, Outcome{Initial: initial, Dropped: len(removed), Left: pool.Len()}, nil
}

type recencyCapStep struct {
	limit int
}

// NewRecencyCap creates the final bounding step: most recently posted first,
// truncated to the configured pool size.
func NewRecencyCap(limit int) Step {
	return &recencyCapStep{limit: limit}
}

func (s *recencyCapStep) Name() string { return "recency_cap" }

func (s *recencyCapStep) Apply(_ context.Context, pool *matching.Positions) (*matching.Positions, Outcome, error) {
	initial := pool.Len()

	pool.SortMostRecentFirst()
	dropped := pool.Cap(s.limit)

	return pool, Outcome{Initial: initial, Dropped: dropped, Left: pool.Len()}, nil
}
