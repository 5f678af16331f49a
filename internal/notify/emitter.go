// Package notify builds and delivers match notifications. Delivery is
// best-effort: failures are logged and never fail the matching run.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/store"
)

const (
	defaultHighPriorityAt = 80
	defaultChannel        = "match-engine:notifications"
)

// Config tunes notification delivery.
type Config struct {
	// HighPriorityAt is the score at which a notification is marked high
	// priority instead of medium.
	HighPriorityAt int
	// Channel is the Redis channel events are published to.
	Channel string
}

func (c Config) withDefaults() Config {
	if c.HighPriorityAt <= 0 {
		c.HighPriorityAt = defaultHighPriorityAt
	}
	if strings.TrimSpace(c.Channel) == "" {
		c.Channel = defaultChannel
	}
	return c
}

// Emitter persists notifications and publishes them for downstream delivery.
type Emitter struct {
	store  store.NotificationStore
	redis  *redis.Client
	logger *zap.Logger
	cfg    Config
}

// New assembles an emitter. The redis client may be nil, in which case events
// are stored but not published.
func New(st store.NotificationStore, client *redis.Client, cfg Config, logger *zap.Logger) *Emitter {
	return &Emitter{
		store:  st,
		redis:  client,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Emit records a notification for a freshly inserted match. Store and publish
// failures are independent warnings; neither blocks the caller.
func (e *Emitter) Emit(ctx context.Context, candidate *matching.Candidate, position *matching.Position, score int) {
	notification := e.build(candidate, position, score)

	if err := e.store.InsertNotification(ctx, notification); err != nil {
		e.logger.Warn("storing notification failed",
			zap.String("candidate_id", candidate.ID),
			zap.String("position_id", position.ID),
			zap.Error(err),
		)
	}

	e.publish(ctx, notification)
}

func (e *Emitter) build(candidate *matching.Candidate, position *matching.Position, score int) *matching.Notification {
	priority := matching.PriorityMedium
	if score >= e.cfg.HighPriorityAt {
		priority = matching.PriorityHigh
	}

	summary := fmt.Sprintf("New match (score %d): %s", score, position.Title)
	if strings.TrimSpace(position.Organization) != "" {
		summary = fmt.Sprintf("%s at %s", summary, position.Organization)
	}

	return &matching.Notification{
		ID:          uuid.NewString(),
		CandidateID: candidate.ID,
		PositionID:  position.ID,
		Priority:    priority,
		Summary:     summary,
		CreatedAt:   time.Now().UTC(),
	}
}

func (e *Emitter) publish(ctx context.Context, notification *matching.Notification) {
	if e.redis == nil {
		return
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		e.logger.Warn("encoding notification failed", zap.Error(err))
		return
	}

	if err := e.redis.Publish(ctx, e.cfg.Channel, payload).Err(); err != nil {
		e.logger.Warn("publishing notification failed",
			zap.String("channel", e.cfg.Channel),
			zap.Error(err),
		)
	}
}
