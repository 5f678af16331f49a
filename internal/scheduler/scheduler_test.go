package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStartRunsJobsImmediately(t *testing.T) {
	ran := make(chan string, 2)
	jobs := []Job{
		{Name: "matching", Spec: "@every 1h", Run: func(context.Context) error {
			ran <- "matching"
			return nil
		}},
		{Name: "embeddings", Spec: "@every 1h", Run: func(context.Context) error {
			ran <- "embeddings"
			return errors.New("provider unavailable")
		}},
	}

	s := New(jobs, zap.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	seen := map[string]bool{}
	for range jobs {
		select {
		case name := <-ran:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("jobs did not run immediately, saw %v", seen)
		}
	}
	// A failing job must not keep the other one from running.
	if !seen["matching"] || !seen["embeddings"] {
		t.Fatalf("expected both jobs to run, saw %v", seen)
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New([]Job{{Name: "broken", Spec: "not a spec", Run: func(context.Context) error { return nil }}}, zap.NewNop())

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("invalid cron spec should be rejected")
	}
}

func TestStopWaitsForRunningJob(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	finished := make(chan struct{})

	jobs := []Job{{Name: "slow", Spec: "@every 1h", Run: func(context.Context) error {
		close(entered)
		<-release
		close(finished)
		return nil
	}}}

	s := New(jobs, zap.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-entered
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}
