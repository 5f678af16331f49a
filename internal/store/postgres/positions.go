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

const positionColumns = `id, COALESCE(title, ''), COALESCE(organization, ''),
	COALESCE(description, ''), COALESCE(categories, '{}'::text[]),
	COALESCE(employment_type, ''), COALESCE(experience_tier, ''),
	COALESCE(location, ''), COALESCE(remote, false),
	COALESCE(skills, '{}'::text[]), status, posted_at, embedding, embedded_at`

func (s *Store) GetPosition(ctx context.Context, id string) (*matching.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)

	position, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return position, nil
}

func (s *Store) ListActivePositions(ctx context.Context, offset, limit int) ([]*matching.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE status = 'active' ORDER BY posted_at DESC, id LIMIT $2 OFFSET $1`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	return collectPositions(rows)
}

func (s *Store) ListPositionsMissingEmbedding(ctx context.Context, offset, limit int) ([]*matching.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE status = 'active' AND embedding IS NULL ORDER BY id LIMIT $2 OFFSET $1`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list positions missing embedding: %w", err)
	}
	return collectPositions(rows)
}

func (s *Store) UpdatePositionEmbedding(ctx context.Context, id string, vector []float32, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET embedding = $2, embedded_at = $3 WHERE id = $1`,
		id, pgvector.NewVector(vector), at)
	if err != nil {
		return fmt.Errorf("update position embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanPosition(row pgx.Row) (*matching.Position, error) {
	var (
		position   matching.Position
		postedAt   *time.Time
		embedding  *pgvector.Vector
		embeddedAt *time.Time
	)

	err := row.Scan(
		&position.ID, &position.Title, &position.Organization,
		&position.Description, &position.Categories, &position.EmploymentType,
		&position.ExperienceTier, &position.Location, &position.Remote,
		&position.Skills, &position.Status, &postedAt, &embedding, &embeddedAt,
	)
	if err != nil {
		return nil, err
	}

	if postedAt != nil {
		position.PostedAt = *postedAt
	}
	if embedding != nil {
		position.Embedding = embedding.Slice()
	}
	if embeddedAt != nil {
		position.EmbeddedAt = *embeddedAt
	}
	return &position, nil
}

func collectPositions(rows pgx.Rows) ([]*matching.Position, error) {
	defer rows.Close()

	positions := make([]*matching.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}
