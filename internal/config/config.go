// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string

	WorkflowAddress   string
	WorkflowNamespace string
	WorkflowTaskQueue string

	HTTPPort  string
	LogLevel  string
	LogPretty bool

	EODSnapshotCron string
	EODAborCron     string
}

// Load reads a .env file if present (ignored if missing) and builds Config
// from environment variables with local-development defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:       getenv("DATABASE_URL", "postgres://localhost:5432/backoffice?sslmode=disable"),
		RedisURL:          getenv("REDIS_URL", "redis://localhost:6379/0"),
		WorkflowAddress:   getenv("WORKFLOW_ADDRESS", "localhost:7233"),
		WorkflowNamespace: getenv("WORKFLOW_NAMESPACE", "default"),
		WorkflowTaskQueue: getenv("WORKFLOW_TASK_QUEUE", "backoffice-tasks"),
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		EODSnapshotCron:   getenv("EOD_SNAPSHOT_CRON", "0 0 * * *"),
		EODAborCron:       getenv("EOD_ABOR_CRON", "5 0 * * *"),
	}

	pretty, err := strconv.ParseBool(getenv("LOG_PRETTY", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_PRETTY: %w", err)
	}
	cfg.LogPretty = pretty

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
