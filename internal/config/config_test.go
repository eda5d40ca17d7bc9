package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_URL", "WORKFLOW_ADDRESS", "WORKFLOW_NAMESPACE",
		"WORKFLOW_TASK_QUEUE", "HTTP_PORT", "LOG_LEVEL", "LOG_PRETTY",
		"EOD_SNAPSHOT_CRON", "EOD_ABOR_CRON",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/backoffice?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "default", cfg.WorkflowNamespace)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, "0 0 * * *", cfg.EODSnapshotCron)
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://example/db")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://example/db", cfg.DatabaseURL)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "9090", cfg.HTTPPort)
}

func TestLoadRejectsInvalidLogPretty(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_PRETTY", "not-a-bool")

	_, err := Load()
	require.Error(t, err)
}
