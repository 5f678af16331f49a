// Package memory implements the engine's stores in process memory. It backs
// unit tests and dry runs against fixture data; production runs use the
// postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	candidates     map[string]*matching.Candidate
	candidateOrder []string
	positions      map[string]*matching.Position
	positionOrder  []string
	matches        map[string]*matching.Match
	notifications  []*matching.Notification
}

func New() *Store {
	return &Store{
		candidates: make(map[string]*matching.Candidate),
		positions:  make(map[string]*matching.Position),
		matches:    make(map[string]*matching.Match),
	}
}

// AddCandidate seeds a candidate, replacing any previous entry with the same ID.
func (s *Store) AddCandidate(c *matching.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; !ok {
		s.candidateOrder = append(s.candidateOrder, c.ID)
	}
	s.candidates[c.ID] = c
}

// AddPosition seeds a position, replacing any previous entry with the same ID.
func (s *Store) AddPosition(p *matching.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		s.positionOrder = append(s.positionOrder, p.ID)
	}
	s.positions[p.ID] = p
}

func (s *Store) GetCandidate(_ context.Context, id string) (*matching.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidate, ok := s.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	return candidate, nil
}

func (s *Store) ListActiveCandidates(_ context.Context, offset, limit int) ([]*matching.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*matching.Candidate, 0, len(s.candidateOrder))
	for _, id := range s.candidateOrder {
		if c := s.candidates[id]; c.Active {
			active = append(active, c)
		}
	}
	return page(active, offset, limit), nil
}

func (s *Store) ListCandidatesMissingEmbedding(_ context.Context, offset, limit int) ([]*matching.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	missing := make([]*matching.Candidate, 0)
	for _, id := range s.candidateOrder {
		if c := s.candidates[id]; c.Active && !c.HasEmbedding() {
			missing = append(missing, c)
		}
	}
	return page(missing, offset, limit), nil
}

func (s *Store) UpdateCandidateEmbedding(_ context.Context, id string, vector []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, ok := s.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
	}
	candidate.Embedding = vector
	candidate.EmbeddedAt = at
	return nil
}

func (s *Store) GetPosition(_ context.Context, id string) (*matching.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, store.ErrNotFound)
	}
	return position, nil
}

func (s *Store) ListActivePositions(_ context.Context, offset, limit int) ([]*matching.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*matching.Position, 0, len(s.positionOrder))
	for _, id := range s.positionOrder {
		if p := s.positions[id]; p.Status == matching.PositionActive {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].PostedAt.After(active[j].PostedAt)
	})
	return page(active, offset, limit), nil
}

func (s *Store) ListPositionsMissingEmbedding(_ context.Context, offset, limit int) ([]*matching.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	missing := make([]*matching.Position, 0)
	for _, id := range s.positionOrder {
		if p := s.positions[id]; p.Status == matching.PositionActive && !p.HasEmbedding() {
			missing = append(missing, p)
		}
	}
	return page(missing, offset, limit), nil
}

func (s *Store) UpdatePositionEmbedding(_ context.Context, id string, vector []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("position %s: %w", id, store.ErrNotFound)
	}
	position.Embedding = vector
	position.EmbeddedAt = at
	return nil
}

func (s *Store) UpsertMatch(_ context.Context, candidateID, positionID string, score int) (*matching.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := candidateID + "/" + positionID
	now := time.Now().UTC()

	if existing, ok := s.matches[key]; ok {
		existing.Score = score
		existing.UpdatedAt = now
		return existing, false, nil
	}

	match := &matching.Match{
		CandidateID: candidateID,
		PositionID:  positionID,
		Score:       score,
		Status:      matching.MatchNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.matches[key] = match
	return match, true, nil
}

func (s *Store) MatchedPositionIDs(_ context.Context, candidateID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, match := range s.matches {
		if match.CandidateID == candidateID {
			ids = append(ids, match.PositionID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) InsertNotification(_ context.Context, n *matching.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// Match returns the stored record for a pairing, or nil.
func (s *Store) Match(candidateID, positionID string) *matching.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[candidateID+"/"+positionID]
}

// Notifications returns every recorded notification in emission order.
func (s *Store) Notifications() []*matching.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*matching.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
