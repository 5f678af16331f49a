// Package scheduler runs the engine's periodic work on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Spec is a robfig/cron expression, e.g. "@every 6h" or "0 3 * * *".
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps robfig/cron and keeps job failures out of the loop.
type Scheduler struct {
	cron   *cron.Cron
	jobs   []Job
	logger *zap.Logger

	// wg tracks the immediate startup runs, which the cron runner does not
	// know about.
	wg sync.WaitGroup
}

func New(jobs []Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(logger)))),
		jobs:   jobs,
		logger: logger,
	}
}

// Start registers every job and starts the loop. Each job also runs once
// right away, so a fresh deployment does not wait for its first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(ctx, job) }); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob(ctx, job)
		}()
	}

	return nil
}

// Stop halts the loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.logger.Info("job started", zap.String("job", job.Name))

	if err := job.Run(ctx); err != nil {
		s.logger.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}

	s.logger.Info("job finished", zap.String("job", job.Name))
}
