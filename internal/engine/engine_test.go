package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/scoring"
	"github.com/eagleai/match-engine/internal/similarity"
	"github.com/eagleai/match-engine/internal/store"
	"github.com/eagleai/match-engine/internal/store/memory"
)

// stubScorer returns a fixed total per position id. Unknown positions fail as
// an input-contract violation would.
type stubScorer struct {
	scores map[string]int
	failOn string
}

func (s *stubScorer) Score(_ context.Context, _ *matching.Candidate, position *matching.Position) (*scoring.Breakdown, error) {
	if position.ID == s.failOn {
		return nil, errors.New("vector length mismatch: 4 vs 8")
	}
	total, ok := s.scores[position.ID]
	if !ok {
		return nil, fmt.Errorf("no score configured for %s", position.ID)
	}
	return &scoring.Breakdown{Total: total}, nil
}

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *stubNotifier) Emit(_ context.Context, candidate *matching.Candidate, position *matching.Position, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, candidate.ID+"/"+position.ID)
}

func (n *stubNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

func postedAt(day int) time.Time {
	return time.Date(2026, 7, day, 0, 0, 0, 0, time.UTC)
}

func engineFixture() *memory.Store {
	s := memory.New()
	s.AddCandidate(&matching.Candidate{ID: "c1", Active: true})
	s.AddPosition(&matching.Position{ID: "pA", Title: "Frontend Intern", Status: matching.PositionActive, PostedAt: postedAt(1)})
	s.AddPosition(&matching.Position{ID: "pB", Title: "Backend Intern", Status: matching.PositionActive, PostedAt: postedAt(2)})
	return s
}

func newOrchestrator(t *testing.T, st store.Store, scorer Scorer, notifier Notifier, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(st, scorer, similarity.New(zap.NewNop()), notifier, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return o
}

func TestNewValidatesMinScore(t *testing.T) {
	s := memory.New()
	scorer := &stubScorer{}

	for _, invalid := range []int{-1, 101} {
		if _, err := New(s, scorer, similarity.New(zap.NewNop()), nil, Config{MinScore: invalid}, zap.NewNop()); err == nil {
			t.Fatalf("min score %d should be rejected", invalid)
		}
	}
	if _, err := New(s, scorer, similarity.New(zap.NewNop()), nil, Config{MinScore: 100}, zap.NewNop()); err != nil {
		t.Fatalf("min score 100 is valid, got %v", err)
	}
}

func TestRunForCandidateThresholdBoundary(t *testing.T) {
	s := engineFixture()
	scorer := &stubScorer{scores: map[string]int{"pA": 59, "pB": 60}}
	notifier := &stubNotifier{}
	o := newOrchestrator(t, s, scorer, notifier, Config{MinScore: 60})

	recorded, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected one recorded match, got %d", recorded)
	}

	if s.Match("c1", "pA") != nil {
		t.Fatal("score 59 must not produce a match under threshold 60")
	}
	match := s.Match("c1", "pB")
	if match == nil {
		t.Fatal("score 60 should produce a match under threshold 60")
	}
	if match.Status != matching.MatchNew || match.Score != 60 {
		t.Fatalf("unexpected match: %+v", match)
	}

	if events := notifier.Events(); len(events) != 1 || events[0] != "c1/pB" {
		t.Fatalf("unexpected notifications: %v", events)
	}
}

func TestRunForCandidateSecondRunSkipsMatched(t *testing.T) {
	s := engineFixture()
	scorer := &stubScorer{scores: map[string]int{"pA": 90, "pB": 90}}
	notifier := &stubNotifier{}
	o := newOrchestrator(t, s, scorer, notifier, Config{MinScore: 60})

	first, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != 2 || second != 0 {
		t.Fatalf("expected 2 then 0 recorded matches, got %d and %d", first, second)
	}
	// Matched positions leave the pool, so notifications stay single-shot.
	if events := notifier.Events(); len(events) != 2 {
		t.Fatalf("expected one notification per pairing, got %v", events)
	}
}

func TestRunForCandidateUnmetPreferencesRecordNothing(t *testing.T) {
	s := engineFixture()
	s.AddCandidate(&matching.Candidate{
		ID:          "picky",
		Active:      true,
		Preferences: &matching.Preferences{Categories: []string{"quantum computing"}},
	})

	scorer := &stubScorer{scores: map[string]int{"pA": 90, "pB": 90}}
	notifier := &stubNotifier{}
	o := newOrchestrator(t, s, scorer, notifier, Config{MinScore: 60})

	recorded, err := o.RunForCandidate(context.Background(), "picky")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded != 0 {
		t.Fatalf("declared preferences matching nothing must record nothing, got %d", recorded)
	}
	if s.Match("picky", "pA") != nil || s.Match("picky", "pB") != nil {
		t.Fatal("positions outside the declared preferences must not be matched")
	}
	if events := notifier.Events(); len(events) != 0 {
		t.Fatalf("expected no notifications, got %v", events)
	}
}

// staleMatchIndexStore hides existing matches from pool selection, simulating
// a match created by a concurrent run between selection and upsert.
type staleMatchIndexStore struct {
	*memory.Store
}

func (s *staleMatchIndexStore) MatchedPositionIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestRunForCandidateUpdatePreservesStatus(t *testing.T) {
	base := engineFixture()
	scorer := &stubScorer{scores: map[string]int{"pA": 30, "pB": 90}}
	notifier := &stubNotifier{}
	o := newOrchestrator(t, &staleMatchIndexStore{Store: base}, scorer, notifier, Config{MinScore: 60})

	if _, err := o.RunForCandidate(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	match := base.Match("c1", "pB")
	if match == nil {
		t.Fatal("expected a match for pB")
	}
	match.Status = matching.MatchViewed
	created := match.CreatedAt

	scorer.scores["pB"] = 95
	recorded, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("an updated match still counts, got %d", recorded)
	}

	match = base.Match("c1", "pB")
	if match.Score != 95 {
		t.Fatalf("score should be refreshed, got %d", match.Score)
	}
	if match.Status != matching.MatchViewed {
		t.Fatalf("status must survive the update, got %s", match.Status)
	}
	if !match.CreatedAt.Equal(created) {
		t.Fatal("creation timestamp must not change on update")
	}
	if events := notifier.Events(); len(events) != 1 {
		t.Fatalf("updates must not notify again, got %v", events)
	}
}

func TestRunForCandidateIsolatesPairingFailures(t *testing.T) {
	s := engineFixture()
	scorer := &stubScorer{scores: map[string]int{"pB": 80}, failOn: "pA"}
	o := newOrchestrator(t, s, scorer, nil, Config{MinScore: 60})

	recorded, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("one failing pairing must not fail the candidate: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected the healthy pairing to be recorded, got %d", recorded)
	}
	if s.Match("c1", "pB") == nil {
		t.Fatal("expected a match for pB")
	}
}

func TestRunForCandidateRejectsUnknownOrInactive(t *testing.T) {
	s := engineFixture()
	s.AddCandidate(&matching.Candidate{ID: "sleeper", Active: false})
	o := newOrchestrator(t, s, &stubScorer{}, nil, Config{MinScore: 60})

	if _, err := o.RunForCandidate(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := o.RunForCandidate(context.Background(), "sleeper"); err == nil {
		t.Fatal("inactive candidates must be rejected")
	}
}

func TestRunForCandidateSemanticPoolSkipsUnembedded(t *testing.T) {
	s := memory.New()
	s.AddCandidate(&matching.Candidate{ID: "c1", Active: true, Embedding: []float32{1, 0}})
	s.AddPosition(&matching.Position{ID: "near", Status: matching.PositionActive, Embedding: []float32{1, 0}, PostedAt: postedAt(1)})
	s.AddPosition(&matching.Position{ID: "blind", Status: matching.PositionActive, PostedAt: postedAt(2)})

	scorer := &stubScorer{scores: map[string]int{"near": 90, "blind": 90}}
	o := newOrchestrator(t, s, scorer, nil, Config{MinScore: 60})

	recorded, err := o.RunForCandidate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected only the embedded position to be scored, got %d", recorded)
	}
	if s.Match("c1", "blind") != nil {
		t.Fatal("semantic retrieval must drop positions without embeddings")
	}
	if s.Match("c1", "near") == nil {
		t.Fatal("expected a match for the embedded position")
	}
}

// failingMatchIndexStore fails pool selection for one candidate so that whole
// candidate's run errors while others proceed.
type failingMatchIndexStore struct {
	*memory.Store
	failFor string
}

func (s *failingMatchIndexStore) MatchedPositionIDs(ctx context.Context, candidateID string) ([]string, error) {
	if candidateID == s.failFor {
		return nil, errors.New("connection reset")
	}
	return s.Store.MatchedPositionIDs(ctx, candidateID)
}

func TestRunAllTalliesAndIsolatesCandidates(t *testing.T) {
	base := memory.New()
	for _, id := range []string{"c1", "c2", "c3"} {
		base.AddCandidate(&matching.Candidate{ID: id, Active: true})
	}
	base.AddPosition(&matching.Position{ID: "pA", Status: matching.PositionActive, PostedAt: postedAt(1)})
	base.AddPosition(&matching.Position{ID: "pB", Status: matching.PositionActive, PostedAt: postedAt(2)})

	scorer := &stubScorer{scores: map[string]int{"pA": 90, "pB": 40}}
	notifier := &stubNotifier{}
	o := newOrchestrator(t, &failingMatchIndexStore{Store: base, failFor: "c2"}, scorer, notifier, Config{
		MinScore:    60,
		BatchSize:   2,
		BatchPause:  time.Millisecond,
		Concurrency: 2,
	})

	summary, err := o.RunAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ProcessedCandidates != 2 {
		t.Fatalf("expected 2 processed candidates, got %d", summary.ProcessedCandidates)
	}
	if summary.TotalMatches != 2 {
		t.Fatalf("expected 2 matches in total, got %d", summary.TotalMatches)
	}

	if base.Match("c2", "pA") != nil {
		t.Fatal("the failing candidate must not produce matches")
	}
	if len(notifier.Events()) != 2 {
		t.Fatalf("unexpected notifications: %v", notifier.Events())
	}
	if state := o.State(); state != StateIdle {
		t.Fatalf("expected idle after the run, got %s", state)
	}
}

// gatedStore blocks candidate listing until released, keeping a run
// observably in flight.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListActiveCandidates(ctx context.Context, offset, limit int) ([]*matching.Candidate, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.ListActiveCandidates(ctx, offset, limit)
}

func TestRunAllRefusesConcurrentRuns(t *testing.T) {
	gated := &gatedStore{
		Store:   engineFixture(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	scorer := &stubScorer{scores: map[string]int{"pA": 90, "pB": 90}}
	o := newOrchestrator(t, gated, scorer, nil, Config{MinScore: 60})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunAll(context.Background())
		done <- err
	}()

	<-gated.entered
	if state := o.State(); state != StateRunning {
		t.Fatalf("expected running state, got %s", state)
	}
	if _, err := o.RunAll(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := o.State(); state != StateIdle {
		t.Fatalf("expected idle after the run, got %s", state)
	}
}

func TestRunAllStopHaltsAtBatchBoundary(t *testing.T) {
	base := memory.New()
	for _, id := range []string{"c1", "c2", "c3"} {
		base.AddCandidate(&matching.Candidate{ID: id, Active: true})
	}
	base.AddPosition(&matching.Position{ID: "pA", Status: matching.PositionActive, PostedAt: postedAt(1)})

	gated := &gatedStore{
		Store:   base,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	scorer := &stubScorer{scores: map[string]int{"pA": 90}}
	o := newOrchestrator(t, gated, scorer, nil, Config{MinScore: 60, BatchSize: 1})

	type result struct {
		summary *RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := o.RunAll(context.Background())
		done <- result{summary: summary, err: err}
	}()

	// The first batch is already being listed; the stop request must let it
	// finish and prevent the second batch.
	<-gated.entered
	o.Stop()
	if state := o.State(); state != StateCancelling {
		t.Fatalf("expected cancelling state, got %s", state)
	}
	close(gated.release)

	got := <-done
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.summary.ProcessedCandidates != 1 {
		t.Fatalf("expected exactly the first batch processed, got %d", got.summary.ProcessedCandidates)
	}
	if state := o.State(); state != StateIdle {
		t.Fatalf("expected idle after the stop, got %s", state)
	}
}

func TestRunAllHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(t, engineFixture(), &stubScorer{}, nil, Config{MinScore: 60})
	summary, err := o.RunAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil || summary.ProcessedCandidates != 0 {
		t.Fatalf("expected an empty summary, got %+v", summary)
	}
}
