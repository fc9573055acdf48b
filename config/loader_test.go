package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/coordflow/conflict"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Coordinator.MaxAgentsPerTask)
	assert.Equal(t, 4, cfg.Queue.Levels)
	assert.Equal(t, 256, cfg.Queue.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.TaskTimeout)
	assert.Equal(t, 10*time.Second, cfg.Queue.SweepInterval)
	assert.Equal(t, 0.66, cfg.Consensus.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Consensus.Timeout)
	assert.Equal(t, string(conflict.StrategyMerge), cfg.Conflict.Strategy)
}

func TestLoader_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
coordinator:
  max_agents_per_task: 3
queue:
  max_size: 32
  task_timeout: 90s
consensus:
  threshold: 0.8
conflict:
  strategy: vote
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Coordinator.MaxAgentsPerTask)
	assert.Equal(t, 32, cfg.Queue.MaxSize)
	assert.Equal(t, 90*time.Second, cfg.Queue.TaskTimeout)
	assert.Equal(t, 0.8, cfg.Consensus.Threshold)
	assert.Equal(t, "vote", cfg.Conflict.Strategy)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Queue.Levels)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/coordflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Queue.MaxSize)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  max_size: 32\n"), 0o644))

	t.Setenv("COORDFLOW_QUEUE_MAX_SIZE", "8")
	t.Setenv("COORDFLOW_CONSENSUS_TIMEOUT", "15s")
	t.Setenv("COORDFLOW_REDIS_ENABLED", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Queue.MaxSize)
	assert.Equal(t, 15*time.Second, cfg.Consensus.Timeout)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoader_ValidationRejectsBadValues(t *testing.T) {
	t.Setenv("COORDFLOW_CONSENSUS_THRESHOLD", "1.5")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consensus.threshold")
}

func TestLoader_UnknownStrategyRejected(t *testing.T) {
	t.Setenv("COORDFLOW_CONFLICT_STRATEGY", "coin_flip")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict.strategy")
}

func TestConfig_EngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Coordinator.MaxAgentsPerTask = 7
	cfg.Conflict.Strategy = "priority"

	ec := cfg.EngineConfig()
	assert.Equal(t, 7, ec.MaxAgentsPerTask)
	assert.Equal(t, conflict.StrategyPriority, ec.Conflict)
	assert.Equal(t, 256, ec.Queue.MaxSize)
	assert.Equal(t, 0.66, ec.Consensus.Threshold)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Queue.MaxSize > 100 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}
