// Package queue provides the bounded, priority-leveled task queue with
// timeout eviction.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/coordflow/types"
)

// Config configures a TaskQueue.
type Config struct {
	// Levels is the number of priority buckets; 0 is the highest priority.
	Levels int `yaml:"levels" json:"levels"`
	// MaxSize bounds the total number of queued tasks across all buckets.
	MaxSize int `yaml:"max_size" json:"max_size"`
	// TaskTimeout is the maximum age (since creation) a task may reach
	// while resident in the queue before the sweep marks it timed out.
	TaskTimeout time.Duration `yaml:"task_timeout" json:"task_timeout"`
	// SweepInterval is how often the timeout sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	// DrainConcurrency bounds concurrent drain handlers.
	DrainConcurrency int `yaml:"drain_concurrency" json:"drain_concurrency"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Levels:           4,
		MaxSize:          256,
		TaskTimeout:      5 * time.Minute,
		SweepInterval:    10 * time.Second,
		DrainConcurrency: 4,
	}
}

// TimeoutHandler is invoked for each task the sweep evicts by age. The
// queue does not touch task state; the handler owns the status
// transition under whatever lock guards the task.
type TimeoutHandler func(task *types.CoordinatedTask)

// DrainHandler processes one drained task.
type DrainHandler func(ctx context.Context, task *types.CoordinatedTask) error

// TaskQueue is a bounded multi-level priority queue, FIFO within a
// bucket. All methods are safe for concurrent use.
type TaskQueue struct {
	mu        sync.Mutex
	buckets   [][]*types.CoordinatedTask
	levelOf   map[string]int // task ID -> bucket index
	size      int
	cfg       Config
	onTimeout TimeoutHandler

	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewTaskQueue creates a queue. The sweep does not run until Start.
func NewTaskQueue(cfg Config, logger *zap.Logger) *TaskQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Levels <= 0 {
		cfg.Levels = DefaultConfig().Levels
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.DrainConcurrency <= 0 {
		cfg.DrainConcurrency = DefaultConfig().DrainConcurrency
	}
	return &TaskQueue{
		buckets: make([][]*types.CoordinatedTask, cfg.Levels),
		levelOf: make(map[string]int),
		cfg:     cfg,
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("component", "task_queue")),
	}
}

// SetTimeoutHandler installs the sweep callback. Must be set before Start.
func (q *TaskQueue) SetTimeoutHandler(h TimeoutHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onTimeout = h
}

// Enqueue appends the task to the bucket for priority, clamped into
// [0, levels-1]. Returns false, leaving queue and task untouched, when
// the queue is at capacity.
func (q *TaskQueue) Enqueue(task *types.CoordinatedTask, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size >= q.cfg.MaxSize {
		q.logger.Warn("queue full, rejecting task",
			zap.String("task_id", task.ID),
			zap.Int("max_size", q.cfg.MaxSize),
		)
		return false
	}

	if priority < 0 {
		priority = 0
	}
	if priority >= q.cfg.Levels {
		priority = q.cfg.Levels - 1
	}

	q.buckets[priority] = append(q.buckets[priority], task)
	q.levelOf[task.ID] = priority
	q.size++
	return true
}

// Dequeue pops the oldest task from the lowest-numbered non-empty bucket,
// or nil when the queue is empty.
func (q *TaskQueue) Dequeue() *types.CoordinatedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *TaskQueue) dequeueLocked() *types.CoordinatedTask {
	for level, bucket := range q.buckets {
		if len(bucket) == 0 {
			continue
		}
		task := bucket[0]
		q.buckets[level] = bucket[1:]
		delete(q.levelOf, task.ID)
		q.size--
		return task
	}
	return nil
}

// Remove deletes the task with the given ID from whichever bucket holds it.
func (q *TaskQueue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.removeLocked(taskID)
	return ok
}

func (q *TaskQueue) removeLocked(taskID string) (*types.CoordinatedTask, bool) {
	level, ok := q.levelOf[taskID]
	if !ok {
		return nil, false
	}
	bucket := q.buckets[level]
	for i, task := range bucket {
		if task.ID == taskID {
			q.buckets[level] = append(bucket[:i:i], bucket[i+1:]...)
			delete(q.levelOf, taskID)
			q.size--
			return task, true
		}
	}
	return nil, false
}

// UpdatePriority moves the task to the tail of the new priority's bucket.
func (q *TaskQueue) UpdatePriority(taskID string, newPriority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.removeLocked(taskID)
	if !ok {
		return false
	}

	if newPriority < 0 {
		newPriority = 0
	}
	if newPriority >= q.cfg.Levels {
		newPriority = q.cfg.Levels - 1
	}

	q.buckets[newPriority] = append(q.buckets[newPriority], task)
	q.levelOf[taskID] = newPriority
	q.size++
	return true
}

// Len returns the total number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Contains reports whether a task is resident in the queue.
func (q *TaskQueue) Contains(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.levelOf[taskID]
	return ok
}

// Start launches the periodic timeout sweep.
func (q *TaskQueue) Start() {
	go func() {
		ticker := time.NewTicker(q.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Sweep(time.Now())
			case <-q.done:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (q *TaskQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
}

// Sweep evicts every resident task older than TaskTimeout, regardless of
// queue position or whether it was ever assigned, and hands each evicted
// task to the timeout handler. Only the immutable ID and CreatedAt fields
// are read under the queue lock; mutable task state belongs to the
// handler's lock. Exported so tests and hosts can trigger a sweep
// directly.
func (q *TaskQueue) Sweep(now time.Time) int {
	q.mu.Lock()
	var expired []*types.CoordinatedTask
	for level, bucket := range q.buckets {
		kept := bucket[:0]
		for _, task := range bucket {
			if now.Sub(task.CreatedAt) > q.cfg.TaskTimeout {
				delete(q.levelOf, task.ID)
				q.size--
				expired = append(expired, task)
				continue
			}
			kept = append(kept, task)
		}
		q.buckets[level] = kept
	}
	handler := q.onTimeout
	q.mu.Unlock()

	for _, task := range expired {
		q.logger.Info("task exceeded queue age",
			zap.String("task_id", task.ID),
			zap.Duration("age", now.Sub(task.CreatedAt)),
		)
		if handler != nil {
			handler(task)
		}
	}
	return len(expired)
}

// Drain repeatedly dequeues and invokes handler until the queue is empty.
// Handler failures are reported per task and never halt the drain.
func (q *TaskQueue) Drain(ctx context.Context, handler DrainHandler) map[string]error {
	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.DrainConcurrency)

	for {
		task := q.Dequeue()
		if task == nil {
			break
		}
		g.Go(func() error {
			if err := handler(gctx, task); err != nil {
				q.logger.Warn("drain handler failed",
					zap.String("task_id", task.ID),
					zap.Error(err),
				)
				mu.Lock()
				failures[task.ID] = err
				mu.Unlock()
			}
			// Failures are collected, not returned, so one bad task
			// cannot cancel the rest of the drain.
			return nil
		})
	}

	_ = g.Wait()
	return failures
}
