// Package selection narrows the set of positions considered for one candidate
// before any scoring happens. Steps run in order and each reports how much of
// the pool it dropped.
package selection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
)

// Step represents a single narrowing step applied to the position pool.
type Step interface {
	Name() string
	Apply(ctx context.Context, pool *matching.Positions) (*matching.Positions, Outcome, error)
}

// Outcome describes the result of executing a selection step.
type Outcome struct {
	Initial int
	Dropped int
	Left    int
}

// Run executes the supplied steps sequentially, returning the resulting pool.
func Run(ctx context.Context, logger *zap.Logger, steps []Step, pool *matching.Positions) (*matching.Positions, error) {
	for _, step := range steps {
		next, info, err := step.Apply(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if logger != nil {
			logger.Debug("selection step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		pool = next
	}

	return pool, nil
}
