package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/eagleai/match-engine/internal/embedding"
	"github.com/eagleai/match-engine/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	targetCandidates = "candidates"
	targetPositions  = "positions"
)

var embeddingsCmd = &cobra.Command{
	Use:       "embeddings <candidates|positions>",
	Short:     "Refresh stored embeddings for candidates or positions",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{targetCandidates, targetPositions},
	Run: func(cmd *cobra.Command, args []string) {
		refreshEmbeddings(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(embeddingsCmd)

	embeddingsCmd.Flags().Bool("missing-only", false, "embed only profiles without a stored vector")
}

func refreshEmbeddings(cmd *cobra.Command, target string) {
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

	logger.Info("starting the embedding refresh",
		zap.String("version", version),
		zap.String("target", target),
	)

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

	logger.Info("embedding provider ready", zap.String("model", client.EmbeddingModel()))

	service := newEmbeddingService(client, rdb, config, logger)
	refresher := embedding.NewRefresher(service, st, st, logger)

	onlyMissing := cmd.Flag("missing-only").Value.String() == "true"

	var summary *embedding.RefreshSummary
	switch target {
	case targetCandidates:
		summary, err = refresher.RefreshCandidates(ctx, onlyMissing)
	case targetPositions:
		summary, err = refresher.RefreshPositions(ctx, onlyMissing)
	}
	if err != nil {
		logger.Fatal("embedding refresh failed", zap.Error(err), zap.String("target", target))
	}

	logger.Info("embedding refresh complete",
		zap.String("target", target),
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
	)
}
