package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "match-engine"
)

type Config struct {
	Database  *DatabaseConfig  `mapstructure:"database"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Matching  *MatchingConfig  `mapstructure:"matching"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	AI        *AIConfig        `mapstructure:"ai"`
	Schedule  *ScheduleConfig  `mapstructure:"schedule"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	URLFile string `mapstructure:"url-file"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	PasswordFile string        `mapstructure:"password-file"`
	DB           int           `mapstructure:"db"`
	CacheTTL     time.Duration `mapstructure:"cache-ttl"`
	Channel      string        `mapstructure:"channel"`
}

type MatchingConfig struct {
	MinScore             int           `mapstructure:"min-score"`
	PoolSize             int           `mapstructure:"pool-size"`
	BatchSize            int           `mapstructure:"batch-size"`
	BatchPause           time.Duration `mapstructure:"batch-pause"`
	Concurrency          int           `mapstructure:"concurrency"`
	NotifyHighPriorityAt int           `mapstructure:"notify-high-priority-at"`
}

type EmbeddingConfig struct {
	Model             string `mapstructure:"model"`
	Dimensions        int    `mapstructure:"dimensions"`
	BatchSize         int    `mapstructure:"batch-size"`
	RequestsPerMinute int    `mapstructure:"requests-per-minute"`
	MinTextLength     int    `mapstructure:"min-text-length"`
	MaxTextLength     int    `mapstructure:"max-text-length"`
	CacheSize         int    `mapstructure:"cache-size"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ScheduleConfig struct {
	Matching   string `mapstructure:"matching"`
	Embeddings string `mapstructure:"embeddings"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "match-engine scores candidate profiles against open positions and keeps their embeddings fresh",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"database.url":           "DATABASE_URL",
		"database.url-file":      "DATABASE_URL_FILE",
		"redis.password-file":    "REDIS_PASSWORD_FILE",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("matching.min-score", 60)
	viper.SetDefault("schedule.matching", "@every 6h")
	viper.SetDefault("schedule.embeddings", "@every 1h")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is match-engine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for the commands that talk to backing services.
	// Everything else works without a config file.
	if !configNeeded() {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func configNeeded() bool {
	for _, c := range []*cobra.Command{runCmd, embeddingsCmd, similarCmd, scheduleCmd} {
		if c.CalledAs() != "" {
			return true
		}
	}

	return false
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
