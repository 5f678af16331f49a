package matching

import (
	"sort"
	"time"
)

type PositionStatus string

const (
	PositionActive  PositionStatus = "active"
	PositionExpired PositionStatus = "expired"
	PositionFilled  PositionStatus = "filled"
	PositionFlagged PositionStatus = "flagged"
)

type ExperienceTier string

const (
	TierEntry  ExperienceTier = "entry"
	TierMid    ExperienceTier = "mid"
	TierSenior ExperienceTier = "senior"
)

// Position is an open posting as seen by the engine.
type Position struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Organization   string         `json:"organization,omitempty"`
	Description    string         `json:"description,omitempty"`
	Categories     []string       `json:"categories"`
	EmploymentType string         `json:"employment_type,omitempty"`
	ExperienceTier ExperienceTier `json:"experience_tier,omitempty"`
	Location       string         `json:"location,omitempty"`
	Remote         bool           `json:"remote,omitempty"`
	Skills         []string       `json:"skills,omitempty"`
	Status         PositionStatus `json:"status"`
	PostedAt       time.Time      `json:"posted_at,omitempty"`
	Embedding      []float32      `json:"-"`
	EmbeddedAt     time.Time      `json:"embedded_at,omitempty"`
}

// HasEmbedding reports whether a vector is present.
func (p *Position) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// Positions is a mutable working set used during pool selection.
type Positions struct {
	Items []*Position
}

func (p *Positions) Len() int {
	return len(p.Items)
}

func (p *Positions) FindByID(id string) *Position {
	for _, item := range p.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (p *Positions) IDs() []string {
	ids := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ExcludeIDs removes every position whose ID is in targets and returns the
// removed IDs.
func (p *Positions) ExcludeIDs(targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		drop[id] = struct{}{}
	}

	kept := make([]*Position, 0, len(p.Items))
	removed := make([]string, 0)
	for _, item := range p.Items {
		if _, ok := drop[item.ID]; ok {
			removed = append(removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	p.Items = kept

	return removed
}

// SortMostRecentFirst orders the set by PostedAt descending. The sort is
// stable so equal timestamps keep their incoming order.
func (p *Positions) SortMostRecentFirst() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		return p.Items[i].PostedAt.After(p.Items[j].PostedAt)
	})
}

// Cap truncates the set to at most n items and returns the number dropped.
func (p *Positions) Cap(n int) int {
	if n <= 0 || len(p.Items) <= n {
		return 0
	}
	dropped := len(p.Items) - n
	p.Items = p.Items[:n]
	return dropped
}
