package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/eagleai/match-engine/internal/ai/gemini"
	"github.com/eagleai/match-engine/internal/embedding"
	"github.com/eagleai/match-engine/internal/engine"
	"github.com/eagleai/match-engine/internal/logger"
	"github.com/eagleai/match-engine/internal/notify"
	"github.com/eagleai/match-engine/internal/scoring"
	"github.com/eagleai/match-engine/internal/secrets"
	"github.com/eagleai/match-engine/internal/similarity"
	"github.com/eagleai/match-engine/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// resolveDatabaseURL returns the postgres DSN from the config file, the
// DATABASE_URL environment variable, or a file pointed at by
// database.url-file / DATABASE_URL_FILE.
func resolveDatabaseURL(config *Config) (string, error) {
	var inline, file string
	if config != nil && config.Database != nil {
		inline = strings.TrimSpace(config.Database.URL)
		file = strings.TrimSpace(config.Database.URLFile)
	}

	// Values bound only to environment variables do not survive Unmarshal,
	// so fall back to viper directly.
	if inline == "" {
		inline = strings.TrimSpace(viper.GetString("database.url"))
	}
	if file == "" {
		file = strings.TrimSpace(viper.GetString("database.url-file"))
	}

	return secrets.Load(secrets.Source{
		Name:  "database url",
		Value: inline,
		File:  file,
	})
}

// openStore connects to postgres and makes sure the engine-owned tables
// exist. The caller owns the returned pool and must close it.
func openStore(ctx context.Context, config *Config, base *zap.Logger) (*pgxpool.Pool, *postgres.Store, error) {
	databaseURL, err := resolveDatabaseURL(config)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set DATABASE_URL or the database.url key)", err)
	}

	pool, err := postgres.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}

	st := postgres.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	base.Info("connected to postgres")

	return pool, st, nil
}

// resolveRedisPassword returns the redis password from the config file or a
// file pointed at by redis.password-file / REDIS_PASSWORD_FILE. Redis without
// auth is a valid setup, so a missing password resolves to an empty string; a
// password file that is configured but unreadable or empty is still an error.
func resolveRedisPassword(config *Config) (string, error) {
	var inline, file string
	if config != nil && config.Redis != nil {
		inline = strings.TrimSpace(config.Redis.Password)
		file = strings.TrimSpace(config.Redis.PasswordFile)
	}

	if file == "" {
		file = strings.TrimSpace(viper.GetString("redis.password-file"))
	}

	return secrets.LoadOptional(secrets.Source{
		Name:  "redis password",
		Value: inline,
		File:  file,
	})
}

// openRedis connects to redis when an address is configured. A nil client is
// returned otherwise: the embedding cache falls back to memory and match
// events are not published.
func openRedis(ctx context.Context, config *Config, base *zap.Logger) (*redis.Client, error) {
	if config == nil || config.Redis == nil || strings.TrimSpace(config.Redis.Addr) == "" {
		base.Info("redis is not configured, using in-memory embedding cache only")
		return nil, nil
	}

	password, err := resolveRedisPassword(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: password,
		DB:       config.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", config.Redis.Addr, err)
	}

	base.Info("connected to redis", zap.String("addr", config.Redis.Addr))

	return client, nil
}

// newGeminiClient builds the AI provider client from the config. Only the
// gemini provider is supported for now.
func newGeminiClient(ctx context.Context, config *Config, base *zap.Logger) (*gemini.Client, error) {
	aiConfig := config.AI
	if aiConfig == nil {
		aiConfig = &AIConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(aiConfig.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", aiConfig.Provider)
	}

	geminiConfig := aiConfig.Gemini
	if geminiConfig == nil {
		geminiConfig = &GeminiConfig{}
	}

	apiKeyFile := strings.TrimSpace(geminiConfig.APIKeyFile)
	if apiKeyFile == "" {
		apiKeyFile = strings.TrimSpace(viper.GetString("ai.gemini.api-key-file"))
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: apiKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	var embeddingModel string
	if config.Embedding != nil {
		embeddingModel = config.Embedding.Model
	}

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:          apiKey,
		GenerationModel: geminiConfig.Model,
		EmbeddingModel:  embeddingModel,
		MaxRetries:      geminiConfig.MaxRetries,
	}, logger.WithCommonFields(base, "gemini", geminiConfig.Model))
	if err != nil {
		return nil, fmt.Errorf("building gemini client: %w", err)
	}

	return client, nil
}

// newEmbeddingService assembles the embedding pipeline. With a redis client
// the vector cache is shared between processes, otherwise it lives in memory.
func newEmbeddingService(client *gemini.Client, rdb *redis.Client, config *Config, base *zap.Logger) *embedding.Service {
	embeddingConfig := config.Embedding
	if embeddingConfig == nil {
		embeddingConfig = &EmbeddingConfig{}
	}

	var cache embedding.Cache
	if rdb != nil && config.Redis != nil {
		cache = embedding.NewRedisCache(rdb, config.Redis.CacheTTL, base)
	} else {
		cache = embedding.NewMemoryCache(embeddingConfig.CacheSize)
	}

	return embedding.NewService(client, cache, embedding.Config{
		BatchSize:         embeddingConfig.BatchSize,
		MinTextLength:     embeddingConfig.MinTextLength,
		MaxTextLength:     embeddingConfig.MaxTextLength,
		Dimensions:        embeddingConfig.Dimensions,
		RequestsPerMinute: embeddingConfig.RequestsPerMinute,
	}, base)
}

// newOrchestrator assembles the full matching pipeline on top of an open
// store. The notifier publishes through redis when a client is provided.
func newOrchestrator(config *Config, st *postgres.Store, rdb *redis.Client, client *gemini.Client, base *zap.Logger) (*engine.Orchestrator, error) {
	matchingConfig := config.Matching
	if matchingConfig == nil {
		matchingConfig = &MatchingConfig{}
	}

	var maxLogLength int
	if config.AI != nil && config.AI.Gemini != nil {
		maxLogLength = config.AI.Gemini.MaxLogLength
	}

	rater := gemini.NewRater(client, base, maxLogLength)
	calculator := scoring.NewCalculator(rater, base)
	index := similarity.New(base)

	var channel string
	if config.Redis != nil {
		channel = config.Redis.Channel
	}

	notifier := notify.New(st, rdb, notify.Config{
		HighPriorityAt: matchingConfig.NotifyHighPriorityAt,
		Channel:        channel,
	}, base)

	minScore := matchingConfig.MinScore
	if minScore == 0 {
		minScore = viper.GetInt("matching.min-score")
	}

	return engine.New(st, calculator, index, notifier, engine.Config{
		MinScore:    minScore,
		PoolSize:    matchingConfig.PoolSize,
		BatchSize:   matchingConfig.BatchSize,
		BatchPause:  matchingConfig.BatchPause,
		Concurrency: matchingConfig.Concurrency,
	}, base)
}
