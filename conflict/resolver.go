// Package conflict reconciles divergent successful outputs of one task
// through a pluggable strategy.
package conflict

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coordflow/types"
)

// Strategy selects how divergent outputs are reconciled.
type Strategy string

const (
	StrategyFirstWins  Strategy = "first_wins"
	StrategyMerge      Strategy = "merge"
	StrategyVote       Strategy = "vote"
	StrategyPriority   Strategy = "priority"
	StrategyConfidence Strategy = "confidence"
)

// MetadataOutputType is the task metadata key carrying the declared
// output-type tag a custom merge function is registered under.
const MetadataOutputType = "output_type"

// MergeFunc is a caller-registered merge for a declared output type. It
// receives the successful outputs in assignment order.
type MergeFunc func(outputs []any) (any, error)

// Resolver reconciles divergent outputs. The active strategy is swappable
// at runtime; every resolution is recorded as a ConflictEvent for audit.
type Resolver struct {
	mu         sync.RWMutex
	strategy   Strategy
	mergeFuncs map[string]MergeFunc
	events     []*types.ConflictEvent
	logger     *zap.Logger
}

// NewResolver creates a resolver. An empty strategy defaults to merge.
func NewResolver(strategy Strategy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategy == "" {
		strategy = StrategyMerge
	}
	return &Resolver{
		strategy:   strategy,
		mergeFuncs: make(map[string]MergeFunc),
		logger:     logger.With(zap.String("component", "conflict_resolver")),
	}
}

// SetStrategy swaps the active strategy.
func (r *Resolver) SetStrategy(strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = strategy
}

// ActiveStrategy returns the current strategy.
func (r *Resolver) ActiveStrategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// RegisterMergeFunc registers a custom merge keyed by a declared
// output-type tag. It takes precedence over the built-in merge
// heuristics for tasks carrying that tag.
func (r *Resolver) RegisterMergeFunc(outputType string, fn MergeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeFuncs[outputType] = fn
}

// Resolve snapshots every successful output into a ConflictEvent,
// dispatches to the active strategy, and returns the resolution. The
// agents map supplies registered priorities for the priority strategy.
func (r *Resolver) Resolve(task *types.CoordinatedTask, agents map[string]types.AgentRegistration) (*types.Resolution, error) {
	results := task.SuccessfulResults()

	ev := &types.ConflictEvent{
		ID:        types.NewConflictID(),
		TaskID:    task.ID,
		AgentIDs:  make([]string, 0, len(results)),
		Outputs:   make(map[string]any, len(results)),
		CreatedAt: time.Now(),
	}
	for _, res := range results {
		ev.AgentIDs = append(ev.AgentIDs, res.AgentID)
		ev.Outputs[res.AgentID] = res.Output
	}

	r.mu.Lock()
	strategy := r.strategy
	r.events = append(r.events, ev)
	r.mu.Unlock()

	resolution, err := r.dispatch(strategy, task, results, agents)
	if err != nil {
		r.logger.Warn("conflict resolution failed",
			zap.String("task_id", task.ID),
			zap.String("strategy", string(strategy)),
			zap.Error(err),
		)
		return nil, err
	}

	resolved := time.Now()
	ev.Resolution = resolution
	ev.ResolvedAt = &resolved

	r.logger.Info("conflict resolved",
		zap.String("task_id", task.ID),
		zap.String("strategy", resolution.Strategy),
		zap.String("winner", resolution.WinnerAgentID),
	)
	return resolution, nil
}

func (r *Resolver) dispatch(strategy Strategy, task *types.CoordinatedTask, results []*types.AgentResult, agents map[string]types.AgentRegistration) (resolution *types.Resolution, err error) {
	if len(results) == 0 {
		return nil, types.NewError(types.ErrMergeFailed, "no successful results to resolve for task %s", task.ID)
	}

	switch strategy {
	case StrategyFirstWins:
		return firstWins(results), nil
	case StrategyVote:
		return voteResolve(results), nil
	case StrategyPriority:
		return priorityResolve(results, agents), nil
	case StrategyConfidence:
		return confidenceResolve(results), nil
	default:
		// Merge, and any unknown strategy, which falls back to merge
		// rather than failing the task. A custom merge registered for
		// the task's declared output type takes precedence over the
		// built-in merge heuristics.
		if custom := r.customMergeFor(task); custom != nil {
			return r.runCustomMerge(custom, results)
		}
		return mergeResolve(results), nil
	}
}

func (r *Resolver) customMergeFor(task *types.CoordinatedTask) MergeFunc {
	tag, ok := task.Metadata[MetadataOutputType].(string)
	if !ok || tag == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mergeFuncs[tag]
}

// runCustomMerge guards the caller-supplied function: a panic or error is
// surfaced as a failed resolution, never propagated.
func (r *Resolver) runCustomMerge(fn MergeFunc, results []*types.AgentResult) (resolution *types.Resolution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resolution = nil
			err = types.NewError(types.ErrMergeFailed, "custom merge panicked").WithCause(fmt.Errorf("%v", rec))
		}
	}()

	outputs := make([]any, len(results))
	for i, res := range results {
		outputs[i] = res.Output
	}
	merged, mergeErr := fn(outputs)
	if mergeErr != nil {
		return nil, types.NewError(types.ErrMergeFailed, "custom merge failed").WithCause(mergeErr)
	}
	return &types.Resolution{Strategy: string(StrategyMerge), Output: merged}, nil
}

// Events returns all recorded conflict events in detection order.
func (r *Resolver) Events() []*types.ConflictEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.ConflictEvent, len(r.events))
	copy(out, r.events)
	return out
}

// EventsForTask returns the conflict events recorded for one task.
func (r *Resolver) EventsForTask(taskID string) []*types.ConflictEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.ConflictEvent
	for _, ev := range r.events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out
}

// firstWins picks the first successful result in assignment order.
func firstWins(results []*types.AgentResult) *types.Resolution {
	winner := results[0]
	return &types.Resolution{
		Strategy:      string(StrategyFirstWins),
		WinnerAgentID: winner.AgentID,
		Output:        winner.Output,
	}
}

// voteResolve groups outputs by structural equality and returns the most
// frequent group; ties break toward the earliest first occurrence.
func voteResolve(results []*types.AgentResult) *types.Resolution {
	counts := make(map[string]int, len(results))
	firstOf := make(map[string]*types.AgentResult, len(results))
	order := make([]string, 0, len(results))

	for _, res := range results {
		key := types.Canonical(res.Output)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			firstOf[key] = res
		}
		counts[key]++
	}

	bestKey := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[bestKey] {
			bestKey = key
		}
	}

	winner := firstOf[bestKey]
	return &types.Resolution{
		Strategy:      string(StrategyVote),
		WinnerAgentID: winner.AgentID,
		Output:        winner.Output,
		VoteCounts:    counts,
	}
}

// priorityResolve picks the result from the highest-priority registered
// agent; ties break by ascending agent ID so the ordering key stays
// deterministic even for unregistered agents.
func priorityResolve(results []*types.AgentResult, agents map[string]types.AgentRegistration) *types.Resolution {
	winner := results[0]
	for _, res := range results[1:] {
		wp, rp := agents[winner.AgentID].Priority, agents[res.AgentID].Priority
		if rp > wp || (rp == wp && res.AgentID < winner.AgentID) {
			winner = res
		}
	}
	return &types.Resolution{
		Strategy:      string(StrategyPriority),
		WinnerAgentID: winner.AgentID,
		Output:        winner.Output,
	}
}

// confidenceResolve picks the highest-confidence result; when no result
// carries a confidence it falls back to first-wins.
func confidenceResolve(results []*types.AgentResult) *types.Resolution {
	var winner *types.AgentResult
	for _, res := range results {
		if res.Confidence == nil {
			continue
		}
		if winner == nil || *res.Confidence > *winner.Confidence {
			winner = res
		}
	}
	if winner == nil {
		res := firstWins(results)
		res.Strategy = string(StrategyConfidence)
		return res
	}
	return &types.Resolution{
		Strategy:      string(StrategyConfidence),
		WinnerAgentID: winner.AgentID,
		Output:        winner.Output,
	}
}
