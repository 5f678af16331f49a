package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/eagleai/match-engine/internal/logger"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var prompt = promptui.Select{
	Label: "Proceed with the matching run?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run matching for all active candidates, or one with --candidate",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("candidate", "c", "", "run matching for a single candidate id")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before the run")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
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

	logger.Info("starting the match-engine", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

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

	candidateID := cmd.Flag("candidate").Value.String()

	scope := "all active candidates"
	if candidateID != "" {
		scope = "candidate " + candidateID
	}

	logger.Info("ready to start the matching run",
		zap.String("scope", scope),
		zap.Int("min_score", viper.GetInt("matching.min-score")),
		zap.String("generation_model", client.GenerationModel()),
	)

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	if candidateID != "" {
		matches, err := orchestrator.RunForCandidate(ctx, candidateID)
		if err != nil {
			logger.Fatal("matching run failed", zap.Error(err), zap.String("candidate_id", candidateID))
		}

		logger.Info("matching run complete",
			zap.String("candidate_id", candidateID),
			zap.Int("matches", matches),
		)
		return
	}

	summary, err := orchestrator.RunAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("matching run interrupted",
				zap.Int("processed_candidates", summary.ProcessedCandidates),
				zap.Int("total_matches", summary.TotalMatches),
			)
			return
		}

		logger.Fatal("matching run failed", zap.Error(err))
	}

	logger.Info("matching run complete",
		zap.Int("processed_candidates", summary.ProcessedCandidates),
		zap.Int("total_matches", summary.TotalMatches),
	)
}
