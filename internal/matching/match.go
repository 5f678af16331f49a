// Package matching holds the engine's view of candidates, positions and the
// match records it produces.
//
// Match statuses advance along
//
//	new -> viewed -> applied -> accepted
//
// with rejected reachable from any non-terminal status. accepted is also
// reachable straight from new or viewed (an organization can accept a
// candidate who never marked the match applied). accepted and rejected are
// terminal. The engine only ever creates records with status new; transitions
// belong to the consuming layer and are validated here.
package matching

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchNew      MatchStatus = "new"
	MatchViewed   MatchStatus = "viewed"
	MatchApplied  MatchStatus = "applied"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// validTransitions lists every allowed (from, to) pair.
var validTransitions = map[MatchStatus][]MatchStatus{
	MatchNew:     {MatchViewed, MatchAccepted, MatchRejected},
	MatchViewed:  {MatchApplied, MatchAccepted, MatchRejected},
	MatchApplied: {MatchAccepted, MatchRejected},
	// accepted and rejected are terminal and have no entry here
}

// ParseMatchStatus converts a raw string to a MatchStatus, returning an error
// for unknown values.
func ParseMatchStatus(s string) (MatchStatus, error) {
	st := MatchStatus(s)
	switch st {
	case MatchNew, MatchViewed, MatchApplied, MatchAccepted, MatchRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// CanTransition returns true when the state machine permits the transition.
func CanTransition(from, to MatchStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func IsTerminal(s MatchStatus) bool {
	_, ok := validTransitions[s]
	return !ok
}

// Match pairs one candidate with one position. The (CandidateID, PositionID)
// pair is unique; repeated runs update Score and UpdatedAt in place.
type Match struct {
	CandidateID string      `json:"candidate_id"`
	PositionID  string      `json:"position_id"`
	Score       int         `json:"score"`
	Status      MatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type NotificationPriority string

const (
	PriorityHigh   NotificationPriority = "high"
	PriorityMedium NotificationPriority = "medium"
)

// Notification records one outbound event for a freshly inserted match.
type Notification struct {
	ID          string               `json:"id"`
	CandidateID string               `json:"candidate_id"`
	PositionID  string               `json:"position_id"`
	Priority    NotificationPriority `json:"priority"`
	Summary     string               `json:"summary"`
	CreatedAt   time.Time            `json:"created_at"`
}
