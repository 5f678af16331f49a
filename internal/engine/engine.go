// Package engine drives matching runs: pool selection, scoring, persistence
// and notification, for one candidate or for the whole active population.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/scoring"
	"github.com/eagleai/match-engine/internal/selection"
	"github.com/eagleai/match-engine/internal/similarity"
	"github.com/eagleai/match-engine/internal/store"
	"github.com/eagleai/match-engine/internal/utils"
)

// ErrRunInProgress is returned by RunAll when a previous full run has not
// finished yet.
var ErrRunInProgress = errors.New("matching run already in progress")

const (
	defaultPoolSize    = 50
	defaultBatchSize   = 20
	defaultConcurrency = 4

	positionPageSize = 200

	// retrievalSlack widens semantic retrieval beyond the final pool cap so
	// the exclude-matched step that follows has room to prune.
	retrievalSlack = 2
)

// RunState reports what the orchestrator is currently doing.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateRunning    RunState = "running"
	StateCancelling RunState = "cancelling"
)

// Config bounds a matching run.
type Config struct {
	// MinScore is the minimum total score a pairing must reach to be
	// persisted as a match. Must be within [0, 100].
	MinScore int
	// PoolSize caps how many positions are scored per candidate.
	PoolSize int
	// BatchSize is the number of candidates loaded and processed per batch
	// during a full run.
	BatchSize int
	// BatchPause is the pause between candidate batches.
	BatchPause time.Duration
	// Concurrency bounds how many candidates of a batch run at once.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	return c
}

func (c Config) validate() error {
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("minimum match score must be within [0, 100], got %d", c.MinScore)
	}
	return nil
}

// Scorer produces the weighted breakdown for one pairing.
type Scorer interface {
	Score(ctx context.Context, candidate *matching.Candidate, position *matching.Position) (*scoring.Breakdown, error)
}

// Notifier delivers match notifications. Delivery is best-effort and must
// never block or fail the matching run.
type Notifier interface {
	Emit(ctx context.Context, candidate *matching.Candidate, position *matching.Position, score int)
}

// RunSummary reports the outcome of a full matching run.
type RunSummary struct {
	ProcessedCandidates int `json:"processed_candidates"`
	TotalMatches        int `json:"total_matches"`
}

// Orchestrator wires pool selection, scoring and persistence together.
type Orchestrator struct {
	store    store.Store
	scorer   Scorer
	index    *similarity.Index
	notifier Notifier
	logger   *zap.Logger
	cfg      Config

	mu    sync.Mutex
	state RunState
}

// New validates the configuration and assembles an orchestrator. The notifier
// may be nil when notification delivery is not wanted.
func New(st store.Store, scorer Scorer, index *similarity.Index, notifier Notifier, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if index == nil {
		return nil, fmt.Errorf("similarity index is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:    st,
		scorer:   scorer,
		index:    index,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		state:    StateIdle,
	}, nil
}

// RunForCandidate selects a pool for one candidate, scores every pairing and
// persists the ones that reach the threshold. A single pairing's scoring or
// persistence failure is logged and skipped. It returns the number of matches
// recorded this run.
func (o *Orchestrator) RunForCandidate(ctx context.Context, candidateID string) (int, error) {
	candidate, err := o.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return 0, fmt.Errorf("load candidate %s: %w", candidateID, err)
	}
	if !candidate.Active {
		return 0, fmt.Errorf("candidate %s is not active", candidateID)
	}

	pool, err := o.selectPool(ctx, candidate)
	if err != nil {
		return 0, fmt.Errorf("select pool: %w", err)
	}
	if pool.Len() == 0 {
		o.logger.Info("no positions to score", zap.String("candidate_id", candidate.ID))
		return 0, nil
	}

	recorded := 0
	for _, position := range pool.Items {
		breakdown, err := o.scorer.Score(ctx, candidate, position)
		if err != nil {
			o.logger.Warn("scoring pairing failed",
				zap.String("candidate_id", candidate.ID),
				zap.String("position_id", position.ID),
				zap.Error(err),
			)
			continue
		}

		if breakdown.Total < o.cfg.MinScore {
			o.logger.Debug("score below threshold",
				zap.String("candidate_id", candidate.ID),
				zap.String("position_id", position.ID),
				zap.Int("score", breakdown.Total),
				zap.Int("min_score", o.cfg.MinScore),
			)
			continue
		}

		match, inserted, err := o.store.UpsertMatch(ctx, candidate.ID, position.ID, breakdown.Total)
		if err != nil {
			o.logger.Warn("persisting match failed",
				zap.String("candidate_id", candidate.ID),
				zap.String("position_id", position.ID),
				zap.Error(err),
			)
			continue
		}
		recorded++

		o.logger.Info("match recorded",
			zap.String("candidate_id", candidate.ID),
			zap.String("position_id", position.ID),
			zap.Int("score", match.Score),
			zap.Bool("inserted", inserted),
		)

		if inserted && o.notifier != nil {
			o.notifier.Emit(ctx, candidate, position, breakdown.Total)
		}
	}

	return recorded, nil
}

// selectPool loads the active position set and narrows it through the
// selection pipeline. Semantic retrieval is used when the candidate carries an
// embedding, the declared-preference filter otherwise.
func (o *Orchestrator) selectPool(ctx context.Context, candidate *matching.Candidate) (*matching.Positions, error) {
	pool := &matching.Positions{}
	offset := 0
	for {
		page, err := o.store.ListActivePositions(ctx, offset, positionPageSize)
		if err != nil {
			return nil, fmt.Errorf("list active positions: %w", err)
		}
		pool.Items = append(pool.Items, page...)
		if len(page) < positionPageSize {
			break
		}
		offset += len(page)
	}

	retrieval := selection.NewPreferences(candidate)
	if candidate.HasEmbedding() {
		retrieval = selection.NewSemantic(o.index, candidate, o.cfg.PoolSize*retrievalSlack)
	}

	steps := []selection.Step{
		retrieval,
		selection.NewExcludeMatched(o.store, candidate.ID),
		selection.NewRecencyCap(o.cfg.PoolSize),
	}

	return selection.Run(ctx, o.logger.With(zap.String("candidate_id", candidate.ID)), steps, pool)
}

// RunAll processes every active candidate in fixed-size batches. Inside a
// batch candidates run concurrently; one candidate's failure never aborts the
// others. Cancellation takes effect at batch boundaries, returning the
// summary collected so far together with the context error.
func (o *Orchestrator) RunAll(ctx context.Context) (*RunSummary, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.finish()

	summary := &RunSummary{}
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if o.stopRequested() {
			o.logger.Info("stop requested, halting run",
				zap.Int("processed_candidates", summary.ProcessedCandidates),
			)
			return summary, nil
		}

		batch, err := o.store.ListActiveCandidates(ctx, offset, o.cfg.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("list active candidates: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		o.runBatch(ctx, batch, summary)

		if len(batch) < o.cfg.BatchSize {
			break
		}
		offset += len(batch)

		if err := utils.WaitFor(ctx, o.cfg.BatchPause); err != nil {
			return summary, err
		}
	}

	o.logger.Info("matching run finished",
		zap.Int("processed_candidates", summary.ProcessedCandidates),
		zap.Int("total_matches", summary.TotalMatches),
	)

	return summary, nil
}

type candidateResult struct {
	candidateID string
	matches     int
	err         error
}

// runBatch runs one batch of candidates with bounded concurrency, collecting
// a result or an error per candidate so the tally stays deterministic.
func (o *Orchestrator) runBatch(ctx context.Context, batch []*matching.Candidate, summary *RunSummary) {
	results := make([]candidateResult, len(batch))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, candidate := range batch {
		g.Go(func() error {
			matches, err := o.RunForCandidate(ctx, candidate.ID)
			results[i] = candidateResult{candidateID: candidate.ID, matches: matches, err: err}
			// Failures are tallied per candidate, never propagated through
			// the group.
			return nil
		})
	}
	_ = g.Wait()

	for _, result := range results {
		if result.err != nil {
			o.logger.Warn("candidate run failed",
				zap.String("candidate_id", result.candidateID),
				zap.Error(result.err),
			)
			continue
		}
		summary.ProcessedCandidates++
		summary.TotalMatches += result.matches
	}
}

// State reports the orchestrator's current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stop requests a graceful halt of an in-flight full run. The current batch
// finishes; no further batch starts.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		o.state = StateCancelling
	}
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrRunInProgress
	}
	o.state = StateRunning
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
}

func (o *Orchestrator) stopRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateCancelling
}
