// Package store defines the narrow persistence surface the engine consumes.
// The platform's CRUD service owns the wide candidate/position schema; the
// engine reads profiles and postings, writes embedding columns, and owns the
// matches and notifications tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/eagleai/match-engine/internal/matching"
)

var ErrNotFound = errors.New("not found")

type CandidateStore interface {
	GetCandidate(ctx context.Context, id string) (*matching.Candidate, error)
	// ListActiveCandidates pages through active candidates in a stable order.
	ListActiveCandidates(ctx context.Context, offset, limit int) ([]*matching.Candidate, error)
	ListCandidatesMissingEmbedding(ctx context.Context, offset, limit int) ([]*matching.Candidate, error)
	UpdateCandidateEmbedding(ctx context.Context, id string, vector []float32, at time.Time) error
}

type PositionStore interface {
	GetPosition(ctx context.Context, id string) (*matching.Position, error)
	// ListActivePositions pages through active positions most recent first.
	ListActivePositions(ctx context.Context, offset, limit int) ([]*matching.Position, error)
	ListPositionsMissingEmbedding(ctx context.Context, offset, limit int) ([]*matching.Position, error)
	UpdatePositionEmbedding(ctx context.Context, id string, vector []float32, at time.Time) error
}

type MatchStore interface {
	// UpsertMatch inserts a new match with status new, or updates the score
	// and UpdatedAt of the existing (candidate, position) record without
	// touching its status. The bool reports whether a row was inserted.
	UpsertMatch(ctx context.Context, candidateID, positionID string, score int) (*matching.Match, bool, error)
	// MatchedPositionIDs lists the positions already matched to a candidate.
	MatchedPositionIDs(ctx context.Context, candidateID string) ([]string, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *matching.Notification) error
}

// Store bundles every interface the engine wires at startup.
type Store interface {
	CandidateStore
	PositionStore
	MatchStore
	NotificationStore
}
