// Package config loads engine configuration from defaults, an optional
// YAML file, and environment variable overrides, in that precedence
// order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/coordflow/conflict"
	"github.com/BaSui01/coordflow/consensus"
	"github.com/BaSui01/coordflow/coordinator"
	"github.com/BaSui01/coordflow/queue"
)

// Config is the complete engine configuration.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator" env:"COORDINATOR"`
	Queue       QueueConfig       `yaml:"queue" env:"QUEUE"`
	Consensus   ConsensusConfig   `yaml:"consensus" env:"CONSENSUS"`
	Conflict    ConflictConfig    `yaml:"conflict" env:"CONFLICT"`
	Redis       RedisConfig       `yaml:"redis" env:"REDIS"`
	Store       StoreConfig       `yaml:"store" env:"STORE"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Metrics     MetricsConfig     `yaml:"metrics" env:"METRICS"`
}

// CoordinatorConfig tunes assignment.
type CoordinatorConfig struct {
	// MaxAgentsPerTask caps multi-agent assignment cardinality.
	MaxAgentsPerTask int `yaml:"max_agents_per_task" env:"MAX_AGENTS_PER_TASK"`
}

// QueueConfig tunes the priority queue and its timeout sweep.
type QueueConfig struct {
	Levels           int           `yaml:"levels" env:"LEVELS"`
	MaxSize          int           `yaml:"max_size" env:"MAX_SIZE"`
	TaskTimeout      time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	DrainConcurrency int           `yaml:"drain_concurrency" env:"DRAIN_CONCURRENCY"`
}

// ConsensusConfig tunes voting rounds.
type ConsensusConfig struct {
	// Threshold is the acceptance ratio over total assigned agents.
	Threshold float64       `yaml:"threshold" env:"THRESHOLD"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConflictConfig selects the resolution strategy.
type ConflictConfig struct {
	// Strategy: first_wins, merge, vote, priority, confidence.
	Strategy string `yaml:"strategy" env:"STRATEGY"`
}

// RedisConfig configures the optional Redis stream notifier.
type RedisConfig struct {
	Enabled       bool    `yaml:"enabled" env:"ENABLED"`
	Addr          string  `yaml:"addr" env:"ADDR"`
	Password      string  `yaml:"password" env:"PASSWORD"`
	DB            int     `yaml:"db" env:"DB"`
	Stream        string  `yaml:"stream" env:"STREAM"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
}

// StoreConfig configures the optional event audit store.
type StoreConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path is the SQLite file; ":memory:" for ephemeral.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig toggles prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	q := queue.DefaultConfig()
	cs := consensus.DefaultConfig()
	return &Config{
		Coordinator: CoordinatorConfig{MaxAgentsPerTask: 5},
		Queue: QueueConfig{
			Levels:           q.Levels,
			MaxSize:          q.MaxSize,
			TaskTimeout:      q.TaskTimeout,
			SweepInterval:    q.SweepInterval,
			DrainConcurrency: q.DrainConcurrency,
		},
		Consensus: ConsensusConfig{Threshold: cs.Threshold, Timeout: cs.Timeout},
		Conflict:  ConflictConfig{Strategy: string(conflict.StrategyMerge)},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Stream:        "coordflow:assignments",
			RatePerSecond: 100,
		},
		Store: StoreConfig{Path: "coordflow.db"},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// CoordinatorConfig assembles the engine-level config from the loaded
// sections.
func (c *Config) EngineConfig() coordinator.Config {
	return coordinator.Config{
		MaxAgentsPerTask: c.Coordinator.MaxAgentsPerTask,
		Queue: queue.Config{
			Levels:           c.Queue.Levels,
			MaxSize:          c.Queue.MaxSize,
			TaskTimeout:      c.Queue.TaskTimeout,
			SweepInterval:    c.Queue.SweepInterval,
			DrainConcurrency: c.Queue.DrainConcurrency,
		},
		Consensus: consensus.Config{
			Threshold: c.Consensus.Threshold,
			Timeout:   c.Consensus.Timeout,
		},
		Conflict: conflict.Strategy(c.Conflict.Strategy),
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Coordinator.MaxAgentsPerTask <= 0 {
		errs = append(errs, "coordinator.max_agents_per_task must be positive")
	}
	if c.Queue.Levels <= 0 {
		errs = append(errs, "queue.levels must be positive")
	}
	if c.Queue.MaxSize <= 0 {
		errs = append(errs, "queue.max_size must be positive")
	}
	if c.Consensus.Threshold <= 0 || c.Consensus.Threshold > 1 {
		errs = append(errs, "consensus.threshold must be in (0, 1]")
	}
	switch conflict.Strategy(c.Conflict.Strategy) {
	case conflict.StrategyFirstWins, conflict.StrategyMerge, conflict.StrategyVote,
		conflict.StrategyPriority, conflict.StrategyConfidence:
	default:
		errs = append(errs, fmt.Sprintf("unknown conflict.strategy %q", c.Conflict.Strategy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
