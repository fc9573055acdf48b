// Package coordinator orchestrates multi-agent task execution: it owns
// the agent registry and task table, drives assignment, and composes the
// queue, consensus, and conflict components into one engine.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coordflow/conflict"
	"github.com/BaSui01/coordflow/consensus"
	"github.com/BaSui01/coordflow/event"
	"github.com/BaSui01/coordflow/internal/metrics"
	"github.com/BaSui01/coordflow/queue"
	"github.com/BaSui01/coordflow/transport"
	"github.com/BaSui01/coordflow/types"
)

// Config configures a Coordinator.
type Config struct {
	// MaxAgentsPerTask caps assignment cardinality for parallel,
	// consensus, and competitive tasks. Sequential tasks always get all
	// eligible agents.
	MaxAgentsPerTask int `yaml:"max_agents_per_task" json:"max_agents_per_task"`

	Queue     queue.Config      `yaml:"queue" json:"queue"`
	Consensus consensus.Config  `yaml:"consensus" json:"consensus"`
	Conflict  conflict.Strategy `yaml:"conflict_strategy" json:"conflict_strategy"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAgentsPerTask: 5,
		Queue:            queue.DefaultConfig(),
		Consensus:        consensus.DefaultConfig(),
		Conflict:         conflict.StrategyMerge,
	}
}

// CreateTaskOptions are parameters for creating a task.
type CreateTaskOptions struct {
	Type                 types.TaskType
	Description          string
	Input                any
	RequiredCapabilities []string
	Metadata             map[string]any
	// Priority is the queue priority level; 0 is highest.
	Priority int
}

// Metadata keys the coordinator annotates terminal tasks with.
const (
	MetadataConflictResolution = "conflict_resolution"
	MetadataConsensus          = "consensus"
	MetadataConsensusFailure   = "consensus_failure"
	MetadataFailureReason      = "failure_reason"
	MetadataWinner             = "winner"
)

// Coordinator is the orchestration engine. All state mutation happens
// under one mutex, making the entry points a single serialization
// domain: results and votes are processed strictly in call-arrival
// order, and a terminal failure on one task never touches another.
// Outbound notification and event delivery are asynchronous and never
// block a state transition.
type Coordinator struct {
	mu     sync.Mutex
	agents map[string]types.AgentRegistration
	tasks  map[string]*types.CoordinatedTask

	cfg       Config
	queue     *queue.TaskQueue
	consensus *consensus.Manager
	resolver  *conflict.Resolver
	bus       event.Bus
	notifier  transport.Notifier
	collector *metrics.Collector

	logger *zap.Logger
}

// NewCoordinator creates a coordinator with its own event bus. The
// timeout sweep does not run until Start.
func NewCoordinator(cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAgentsPerTask <= 0 {
		cfg.MaxAgentsPerTask = DefaultConfig().MaxAgentsPerTask
	}

	bus := event.NewBus(logger)
	c := &Coordinator{
		agents:    make(map[string]types.AgentRegistration),
		tasks:     make(map[string]*types.CoordinatedTask),
		cfg:       cfg,
		queue:     queue.NewTaskQueue(cfg.Queue, logger),
		consensus: consensus.NewManager(cfg.Consensus, bus, logger),
		resolver:  conflict.NewResolver(cfg.Conflict, logger),
		bus:       bus,
		logger:    logger.With(zap.String("component", "coordinator")),
	}

	c.queue.SetTimeoutHandler(c.handleQueueTimeout)
	c.consensus.OnAccepted(c.handleConsensusAccepted)
	c.consensus.OnFailed(c.handleConsensusFailed)
	return c
}

// Bus returns the observation feed for host-side subscription.
func (c *Coordinator) Bus() event.Bus { return c.bus }

// Resolver returns the conflict resolver, for strategy swaps and custom
// merge registration.
func (c *Coordinator) Resolver() *conflict.Resolver { return c.resolver }

// Consensus returns the consensus manager, for threshold and timeout
// tuning.
func (c *Coordinator) Consensus() *consensus.Manager { return c.consensus }

// Queue returns the task queue.
func (c *Coordinator) Queue() *queue.TaskQueue { return c.queue }

// SetNotifier installs the assignment notification sink.
func (c *Coordinator) SetNotifier(n transport.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// SetMetrics installs a metrics collector.
func (c *Coordinator) SetMetrics(collector *metrics.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collector = collector
}

// Start launches the queue timeout sweep.
func (c *Coordinator) Start() {
	c.queue.Start()
	c.logger.Info("coordinator started")
}

// Stop halts background activity and the event bus.
func (c *Coordinator) Stop() {
	c.queue.Stop()
	c.bus.Stop()
	c.logger.Info("coordinator stopped")
}

// RegisterAgent adds or replaces an agent registration.
func (c *Coordinator) RegisterAgent(reg types.AgentRegistration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[reg.ID] = reg
	c.logger.Info("agent registered",
		zap.String("agent_id", reg.ID),
		zap.Strings("capabilities", reg.Capabilities),
		zap.Int("priority", reg.Priority),
	)
}

// UnregisterAgent removes an agent. In-flight assignments are untouched;
// the agent simply receives no further work.
func (c *Coordinator) UnregisterAgent(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.agents[agentID]
	delete(c.agents, agentID)
	return ok
}

// ListAgents returns all registrations sorted by descending priority,
// ties by ascending ID.
func (c *Coordinator) ListAgents() []types.AgentRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.AgentRegistration, 0, len(c.agents))
	for _, reg := range c.agents {
		out = append(out, reg)
	}
	sortAgents(out)
	return out
}

// CreateTask builds a task in pending status, enqueues it, and
// synchronously attempts assignment. It returns the task ID even when
// assignment fails so the caller can inspect the failed task.
func (c *Coordinator) CreateTask(ctx context.Context, opts CreateTaskOptions) (string, error) {
	task := &types.CoordinatedTask{
		ID:                   types.NewTaskID(),
		Type:                 opts.Type,
		Description:          opts.Description,
		RequiredCapabilities: append([]string(nil), opts.RequiredCapabilities...),
		Input:                opts.Input,
		Status:               types.StatusPending,
		Results:              make(map[string]*types.AgentResult),
		CreatedAt:            time.Now(),
		Metadata:             opts.Metadata,
	}

	c.mu.Lock()
	if !c.queue.Enqueue(task, opts.Priority) {
		c.mu.Unlock()
		if c.collector != nil {
			c.collector.QueueRejected()
		}
		return "", types.NewError(types.ErrQueueFull, "queue at capacity, task %s rejected", task.ID)
	}
	c.tasks[task.ID] = task
	c.observeQueueDepth()

	c.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.Strings("required_capabilities", task.RequiredCapabilities),
	)
	c.publish(&event.TaskCreatedEvent{TaskID: task.ID, TaskType: task.Type, Timestamp_: task.CreatedAt})

	err := c.assignLocked(ctx, task)
	c.mu.Unlock()

	return task.ID, err
}

// assignLocked filters, sorts, and assigns eligible agents per the task
// type's cardinality, then emits one notification per (task, agent) pair.
func (c *Coordinator) assignLocked(ctx context.Context, task *types.CoordinatedTask) error {
	eligible := c.eligibleAgentsLocked(task.RequiredCapabilities)
	if len(eligible) == 0 {
		c.failLocked(task, "no eligible agents for required capabilities")
		return types.NewError(types.ErrNoEligibleAgents, "no eligible agents for task %s", task.ID)
	}

	count := len(eligible)
	switch task.Type {
	case types.TaskSingle:
		count = 1
	case types.TaskParallel, types.TaskConsensus, types.TaskCompetitive:
		if count > c.cfg.MaxAgentsPerTask {
			count = c.cfg.MaxAgentsPerTask
		}
	case types.TaskSequential:
		// All eligible agents. Dispatch and collection are identical to
		// parallel; no one-at-a-time ordering is enforced.
	}

	now := time.Now()
	task.AssignedAgents = make([]string, 0, count)
	for _, reg := range eligible[:count] {
		task.AssignedAgents = append(task.AssignedAgents, reg.ID)
	}
	task.Status = types.StatusAssigned
	task.StartedAt = &now

	c.logger.Info("task assigned",
		zap.String("task_id", task.ID),
		zap.Strings("agents", task.AssignedAgents),
	)
	c.publish(&event.TaskAssignedEvent{TaskID: task.ID, AgentIDs: task.AssignedAgents, Timestamp_: now})

	for _, agentID := range task.AssignedAgents {
		c.notifyAssignment(ctx, task, agentID, now)
	}
	return nil
}

// eligibleAgentsLocked returns agents whose capability set covers
// required, sorted by descending priority with a stable tie-break on
// agent ID.
func (c *Coordinator) eligibleAgentsLocked(required []string) []types.AgentRegistration {
	eligible := make([]types.AgentRegistration, 0, len(c.agents))
	for _, reg := range c.agents {
		if reg.HasCapabilities(required) {
			eligible = append(eligible, reg)
		}
	}
	sortAgents(eligible)
	return eligible
}

func sortAgents(agents []types.AgentRegistration) {
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Priority != agents[j].Priority {
			return agents[i].Priority > agents[j].Priority
		}
		return agents[i].ID < agents[j].ID
	})
}

// notifyAssignment hands one (task, agent) notification to the transport
// on its own goroutine; delivery failures are logged, never propagated
// into the assignment.
func (c *Coordinator) notifyAssignment(ctx context.Context, task *types.CoordinatedTask, agentID string, at time.Time) {
	notifier := c.notifier
	if notifier == nil {
		return
	}
	n := transport.AssignmentNotification{
		TaskID:      task.ID,
		AgentID:     agentID,
		TaskType:    task.Type,
		Description: task.Description,
		Input:       task.Input,
		Metadata:    task.Metadata,
		AssignedAt:  at,
	}
	// Delivery must survive the CreateTask caller cancelling its context
	// right after the call returns; values carry over, cancellation does
	// not.
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := notifier.NotifyAssignment(ctx, n); err != nil {
			c.logger.Warn("assignment notification failed",
				zap.String("task_id", n.TaskID),
				zap.String("agent_id", n.AgentID),
				zap.Error(err),
			)
			if c.collector != nil {
				c.collector.NotificationSent("error")
			}
			return
		}
		if c.collector != nil {
			c.collector.NotificationSent("ok")
		}
		c.publish(&event.AssignmentNotifiedEvent{TaskID: n.TaskID, AgentID: n.AgentID, Timestamp_: time.Now()})
	}()
}

// SubmitResult ingests one agent's report for a task. Duplicates
// overwrite the previous report. The completion policy for the task's
// type runs synchronously after the store.
func (c *Coordinator) SubmitResult(ctx context.Context, taskID, agentID string, result types.AgentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[taskID]
	if !ok {
		return types.NewError(types.ErrUnknownTask, "task %s not found", taskID)
	}
	if !task.IsAssigned(agentID) {
		return types.NewError(types.ErrAgentNotAssigned, "agent %s is not assigned to task %s", agentID, taskID)
	}
	if task.Status.Terminal() {
		// Late reports after timeout/completion are tolerated but change
		// nothing.
		c.logger.Debug("result after terminal status ignored",
			zap.String("task_id", taskID),
			zap.String("agent_id", agentID),
			zap.String("status", string(task.Status)),
		)
		return nil
	}

	result.AgentID = agentID
	task.Results[agentID] = &result

	c.logger.Debug("result submitted",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID),
		zap.Bool("success", result.Success),
	)
	c.publish(&event.ResultSubmittedEvent{TaskID: taskID, AgentID: agentID, Success: result.Success, Timestamp_: time.Now()})
	if c.collector != nil {
		c.collector.ResultSubmitted(result.Success)
	}

	c.checkCompletionLocked(task)
	return nil
}

// SubmitVote forwards a consensus vote. Votes have their own
// serialization inside the consensus manager; acceptance feeds back into
// task completion through the manager's callbacks.
func (c *Coordinator) SubmitVote(proposalID string, vote types.VoteDecision) error {
	if err := c.consensus.SubmitVote(proposalID, vote); err != nil {
		return err
	}
	if c.collector != nil {
		c.collector.VoteSubmitted()
	}
	return nil
}

// GetTask returns a snapshot of a task by ID. The copy is detached from
// coordinator state, so callers can read it freely while the task keeps
// moving.
func (c *Coordinator) GetTask(taskID string) (*types.CoordinatedTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return nil, types.NewError(types.ErrUnknownTask, "task %s not found", taskID)
	}
	return task.Clone(), nil
}
