package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/store"
)

const refreshPageSize = 200

// RefreshSummary reports one bulk refresh job.
type RefreshSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Refresher re-embeds stored candidates and positions in bulk. Per-item
// failures are counted and logged, never abort the job.
type Refresher struct {
	service    *Service
	candidates store.CandidateStore
	positions  store.PositionStore
	logger     *zap.Logger
}

func NewRefresher(service *Service, candidates store.CandidateStore, positions store.PositionStore, logger *zap.Logger) *Refresher {
	return &Refresher{
		service:    service,
		candidates: candidates,
		positions:  positions,
		logger:     logger,
	}
}

// RefreshCandidates re-embeds active candidates. With onlyMissing, rows drop
// out of the listed set as soon as their vector is persisted, so the paging
// offset skips only the failures that stayed behind.
func (r *Refresher) RefreshCandidates(ctx context.Context, onlyMissing bool) (*RefreshSummary, error) {
	summary := &RefreshSummary{}

	offset := 0
	for {
		var (
			page []*matching.Candidate
			err  error
		)
		if onlyMissing {
			page, err = r.candidates.ListCandidatesMissingEmbedding(ctx, summary.Failed, refreshPageSize)
		} else {
			page, err = r.candidates.ListActiveCandidates(ctx, offset, refreshPageSize)
		}
		if err != nil {
			return summary, fmt.Errorf("list candidates: %w", err)
		}
		if len(page) == 0 {
			break
		}

		summary.Total += len(page)

		texts := make([]string, 0, len(page))
		for _, candidate := range page {
			texts = append(texts, CandidateText(candidate))
		}

		vectors, batchErr := r.service.EmbedBatch(ctx, texts)
		for i, vector := range vectors {
			candidate := page[i]
			if vector == nil {
				summary.Failed++
				r.logger.Warn("candidate embedding failed", zap.String("candidate_id", candidate.ID))
				continue
			}
			if err := r.candidates.UpdateCandidateEmbedding(ctx, candidate.ID, vector, time.Now().UTC()); err != nil {
				summary.Failed++
				r.logger.Warn("persisting candidate embedding failed",
					zap.String("candidate_id", candidate.ID),
					zap.Error(err),
				)
				continue
			}
			summary.Processed++
		}
		if batchErr != nil {
			return summary, batchErr
		}

		offset += refreshPageSize
		if len(page) < refreshPageSize {
			break
		}
	}

	r.logger.Info("candidate embedding refresh completed",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total),
	)
	return summary, nil
}

// RefreshPositions re-embeds active positions. Paging follows the same rules
// as RefreshCandidates.
func (r *Refresher) RefreshPositions(ctx context.Context, onlyMissing bool) (*RefreshSummary, error) {
	summary := &RefreshSummary{}

	offset := 0
	for {
		var (
			page []*matching.Position
			err  error
		)
		if onlyMissing {
			page, err = r.positions.ListPositionsMissingEmbedding(ctx, summary.Failed, refreshPageSize)
		} else {
			page, err = r.positions.ListActivePositions(ctx, offset, refreshPageSize)
		}
		if err != nil {
			return summary, fmt.Errorf("list positions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		summary.Total += len(page)

		texts := make([]string, 0, len(page))
		for _, position := range page {
			texts = append(texts, PositionText(position))
		}

		vectors, batchErr := r.service.EmbedBatch(ctx, texts)
		for i, vector := range vectors {
			position := page[i]
			if vector == nil {
				summary.Failed++
				r.logger.Warn("position embedding failed", zap.String("position_id", position.ID))
				continue
			}
			if err := r.positions.UpdatePositionEmbedding(ctx, position.ID, vector, time.Now().UTC()); err != nil {
				summary.Failed++
				r.logger.Warn("persisting position embedding failed",
					zap.String("position_id", position.ID),
					zap.Error(err),
				)
				continue
			}
			summary.Processed++
		}
		if batchErr != nil {
			return summary, batchErr
		}

		offset += refreshPageSize
		if len(page) < refreshPageSize {
			break
		}
	}

	r.logger.Info("position embedding refresh completed",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total),
	)
	return summary, nil
}
