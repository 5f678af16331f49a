package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/eagleai/match-engine/internal/logger"
	"github.com/eagleai/match-engine/internal/matching"
	"github.com/eagleai/match-engine/internal/similarity"
	"github.com/eagleai/match-engine/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const similarPageSize = 200

var similarCmd = &cobra.Command{
	Use:   "similar <position-id>",
	Short: "Show the most similar open positions by embedding distance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		similar(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().IntP("top", "k", 10, "how many similar positions to show")
}

func similar(cmd *cobra.Command, positionID string) {
	ctx := context.Background()

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

	pool, st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer pool.Close()

	position, err := st.GetPosition(ctx, positionID)
	if err != nil {
		logger.Fatal("loading position", zap.Error(err), zap.String("position_id", positionID))
	}

	positions, err := listAllActivePositions(ctx, st)
	if err != nil {
		logger.Fatal("listing active positions", zap.Error(err))
	}

	top, err := strconv.Atoi(cmd.Flag("top").Value.String())
	if err != nil || top < 1 {
		top = 10
	}

	index := similarity.New(logger)

	hits, err := index.SimilarToPosition(position, positions, top)
	if err != nil {
		if errors.Is(err, similarity.ErrNoEmbedding) {
			logger.Fatal("position has no embedding",
				zap.String("position_id", positionID),
				zap.String("hint", "run 'match-engine embeddings positions' first"),
			)
		}
		logger.Fatal("ranking positions", zap.Error(err))
	}

	if len(hits) == 0 {
		logger.Info("no embedded positions to compare against", zap.String("position_id", positionID))
		return
	}

	fmt.Printf("Positions similar to %s (%s):\n", position.Title, position.ID)
	for _, hit := range hits {
		fmt.Printf("  %.4f  %-12s  %s\n", hit.Similarity, hit.Position.ID, hit.Position.Title)
	}
}

// listAllActivePositions drains the active position pages into one slice.
func listAllActivePositions(ctx context.Context, positions store.PositionStore) ([]*matching.Position, error) {
	all := make([]*matching.Position, 0)

	for offset := 0; ; offset += similarPageSize {
		page, err := positions.ListActivePositions(ctx, offset, similarPageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < similarPageSize {
			break
		}
	}

	return all, nil
}
