// Package coordflow provides a top-level convenience entry point for
// assembling the coordination engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/coordflow"
//
//	eng, err := coordflow.New()
//	eng, err := coordflow.New(coordflow.WithConfigFile("coordflow.yaml"))
//	eng, err := coordflow.New(coordflow.WithNotifier(myNotifier), coordflow.WithLogger(log))
//
// The engine wires the coordinator, queue, consensus manager, conflict
// resolver, and the optional Redis notifier, SQLite event store, and
// prometheus collector as configured.
package coordflow

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/coordflow/config"
	"github.com/BaSui01/coordflow/coordinator"
	"github.com/BaSui01/coordflow/internal/metrics"
	"github.com/BaSui01/coordflow/store"
	"github.com/BaSui01/coordflow/transport"
)

// Task is re-exported so callers rarely need to import the coordinator
// package directly.
type Task = coordinator.CreateTaskOptions

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	notifier   transport.Notifier
	eventStore store.EventStore
}

// WithConfig supplies a fully built configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from a YAML file, with COORDFLOW_*
// environment overrides.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger. Without it one is built from the
// log section of the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotifier sets the assignment transport. It takes precedence over
// the redis section of the configuration.
func WithNotifier(n transport.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithEventStore sets the audit store. It takes precedence over the
// store section of the configuration; the caller keeps ownership and
// must close it.
func WithEventStore(s store.EventStore) Option {
	return func(o *options) { o.eventStore = s }
}

// Engine is the assembled coordination engine. All coordinator methods
// are promoted; Close releases everything New wired in.
type Engine struct {
	*coordinator.Coordinator

	recorder *store.Recorder

	// owned components, closed by Close; nil when caller-supplied
	ownedStore    store.EventStore
	ownedNotifier *transport.RedisNotifier
}

// New builds and starts an engine.
func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	eng := &Engine{
		Coordinator: coordinator.NewCoordinator(cfg.EngineConfig(), logger),
	}

	if cfg.Metrics.Enabled {
		eng.SetMetrics(metrics.NewCollector("coordflow", nil))
	}

	notifier := o.notifier
	if notifier == nil && cfg.Redis.Enabled {
		rn, err := transport.NewRedisNotifier(transport.RedisNotifierConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			Stream:        cfg.Redis.Stream,
			RatePerSecond: cfg.Redis.RatePerSecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis notifier: %w", err)
		}
		eng.ownedNotifier = rn
		notifier = rn
	}
	if notifier != nil {
		eng.SetNotifier(notifier)
	}

	eventStore := o.eventStore
	if eventStore == nil && cfg.Store.Enabled {
		gs, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %w", err)
		}
		eng.ownedStore = gs
		eventStore = gs
	}
	if eventStore != nil {
		eng.recorder = store.NewRecorder(eventStore, eng.Bus(), logger)
	}

	eng.Start()
	return eng, nil
}

// Close stops background activity and releases owned resources.
func (e *Engine) Close() error {
	if e.recorder != nil {
		e.recorder.Close()
	}
	e.Stop()

	var firstErr error
	if e.ownedStore != nil {
		if err := e.ownedStore.Close(); err != nil {
			firstErr = err
		}
	}
	if e.ownedNotifier != nil {
		if err := e.ownedNotifier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
