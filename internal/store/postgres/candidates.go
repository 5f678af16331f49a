package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/store"
)

const candidateColumns = `id, COALESCE(full_name, ''), COALESCE(graduation_year, 0),
	COALESCE(narrative, ''), COALESCE(skills, '[]'::jsonb), preferences, active,
	embedding, embedded_at`

func (s *Store) GetCandidate(ctx context.Context, id string) (*matching.Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)

	candidate, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return candidate, nil
}

func (s *Store) ListActiveCandidates(ctx context.Context, offset, limit int) ([]*matching.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE active ORDER BY id LIMIT $2 OFFSET $1`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list active candidates: %w", err)
	}
	return collectCandidates(rows)
}

func (s *Store) ListCandidatesMissingEmbedding(ctx context.Context, offset, limit int) ([]*matching.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE active AND embedding IS NULL ORDER BY id LIMIT $2 OFFSET $1`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates missing embedding: %w", err)
	}
	return collectCandidates(rows)
}

func (s *Store) UpdateCandidateEmbedding(ctx context.Context, id string, vector []float32, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET embedding = $2, embedded_at = $3 WHERE id = $1`,
		id, pgvector.NewVector(vector), at)
	if err != nil {
		return fmt.Errorf("update candidate embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanCandidate(row pgx.Row) (*matching.Candidate, error) {
	var (
		candidate  matching.Candidate
		embedding  *pgvector.Vector
		embeddedAt *time.Time
	)

	err := row.Scan(
		&candidate.ID, &candidate.FullName, &candidate.GraduationYear,
		&candidate.Narrative, &candidate.Skills, &candidate.Preferences,
		&candidate.Active, &embedding, &embeddedAt,
	)
	if err != nil {
		return nil, err
	}

	if embedding != nil {
		candidate.Embedding = embedding.Slice()
	}
	if embeddedAt != nil {
		candidate.EmbeddedAt = *embeddedAt
	}
	return &candidate, nil
}

func collectCandidates(rows pgx.Rows) ([]*matching.Candidate, error) {
	defer rows.Close()

	candidates := make([]*matching.Candidate, 0)
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}
