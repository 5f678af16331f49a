package cmd

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/eagleai/match-engine/internal/embedding"
	"github.com/eagleai/match-engine/internal/logger"
	"github.com/eagleai/match-engine/internal/scheduler"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run matching and embedding refresh on the configured cron specs until interrupted",
	Run: func(_ *cobra.Command, _ []string) {
		schedule()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func schedule() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the match-engine scheduler", zap.String("version", version))

	pool, st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := openRedis(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	client, err := newGeminiClient(ctx, config, logger)
	if err != nil {
		logger.Fatal("building gemini client", zap.Error(err))
	}

	orchestrator, err := newOrchestrator(config, st, rdb, client, logger)
	if err != nil {
		logger.Fatal("building the matching pipeline", zap.Error(err))
	}

	service := newEmbeddingService(client, rdb, config, logger)
	refresher := embedding.NewRefresher(service, st, st, logger)

	scheduleConfig := config.Schedule
	if scheduleConfig == nil {
		scheduleConfig = &ScheduleConfig{}
	}

	jobs := make([]scheduler.Job, 0, 2)

	if scheduleConfig.Embeddings != "" {
		jobs = append(jobs, scheduler.Job{
			Name: "embedding refresh",
			Spec: scheduleConfig.Embeddings,
			Run: func(ctx context.Context) error {
				_, candErr := refresher.RefreshCandidates(ctx, false)
				_, posErr := refresher.RefreshPositions(ctx, false)
				return errors.Join(candErr, posErr)
			},
		})
	}

	if scheduleConfig.Matching != "" {
		jobs = append(jobs, scheduler.Job{
			Name: "matching run",
			Spec: scheduleConfig.Matching,
			Run: func(ctx context.Context) error {
				summary, err := orchestrator.RunAll(ctx)
				if err != nil {
					return err
				}

				logger.Info("scheduled matching run complete",
					zap.Int("processed_candidates", summary.ProcessedCandidates),
					zap.Int("total_matches", summary.TotalMatches),
				)
				return nil
			},
		})
	}

	if len(jobs) == 0 {
		logger.Fatal("nothing to schedule",
			zap.String("hint", "set schedule.matching or schedule.embeddings to a cron spec"),
		)
	}

	sched := scheduler.New(jobs, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("starting the scheduler", zap.Error(err))
	}

	logger.Info("scheduler started",
		zap.String("matching", scheduleConfig.Matching),
		zap.String("embeddings", scheduleConfig.Embeddings),
	)

	<-ctx.Done()

	logger.Info("shutting down, waiting for running jobs")
	sched.Stop()
	logger.Info("scheduler stopped")
}
