package postgres

import (
	"context"
	"fmt"

	"github.com/eagleai/match-engine/internal/matching"
)

// UpsertMatch inserts a match with status new or refreshes the score of an
// existing one, leaving its status untouched. The xmax system column tells
// an insert apart from an update.
func (s *Store) UpsertMatch(ctx context.Context, candidateID, positionID string, score int) (*matching.Match, bool, error) {
	var (
		match    matching.Match
		inserted bool
	)

	err := s.pool.QueryRow(ctx,
		`INSERT INTO matches (candidate_id, position_id, score, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'new', now(), now())
		 ON CONFLICT (candidate_id, position_id)
		 DO UPDATE SET score = EXCLUDED.score, updated_at = now()
		 RETURNING candidate_id, position_id, score, status, created_at, updated_at, (xmax = 0)`,
		candidateID, positionID, score,
	).Scan(
		&match.CandidateID, &match.PositionID, &match.Score, &match.Status,
		&match.CreatedAt, &match.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert match: %w", err)
	}

	return &match, inserted, nil
}

func (s *Store) MatchedPositionIDs(ctx context.Context, candidateID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT position_id FROM matches WHERE candidate_id = $1 ORDER BY position_id`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list matched positions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan matched position: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matched positions: %w", err)
	}
	return ids, nil
}

func (s *Store) InsertNotification(ctx context.Context, n *matching.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, candidate_id, position_id, priority, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.CandidateID, n.PositionID, n.Priority, n.Summary, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
