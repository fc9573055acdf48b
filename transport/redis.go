package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const redisDialTimeout = 5 * time.Second

// RedisNotifier publishes assignment notifications to a Redis Stream,
// one XADD per (task, agent) pair. A consumer group on the host side
// gives at-least-once delivery; duplicates are tolerated by design.
type RedisNotifier struct {
	client  *redis.Client
	stream  string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// RedisNotifierConfig configures a RedisNotifier.
type RedisNotifierConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Stream   string `yaml:"stream" json:"stream"`
	// RatePerSecond caps notification publishing; 0 disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(cfg RedisNotifierConfig, logger *zap.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisNotifierWithClient(client, cfg, logger), nil
}

// NewRedisNotifierWithClient wraps an existing client; useful for tests
// and hosts that manage their own connection pool.
func NewRedisNotifierWithClient(client *redis.Client, cfg RedisNotifierConfig, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "coordflow:assignments"
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &RedisNotifier{
		client:  client,
		stream:  stream,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "redis_notifier")),
	}
}

// NotifyAssignment publishes one stream entry for the notification.
func (n *RedisNotifier) NotifyAssignment(ctx context.Context, notification AssignmentNotification) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"task_id":  notification.TaskID,
			"agent_id": notification.AgentID,
			"type":     string(notification.TaskType),
			"payload":  string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish assignment: %w", err)
	}

	n.logger.Debug("assignment published",
		zap.String("task_id", notification.TaskID),
		zap.String("agent_id", notification.AgentID),
	)
	return nil
}

// Close releases the underlying client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
