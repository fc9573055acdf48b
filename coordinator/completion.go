package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coordflow/event"
	"github.com/BaSui01/coordflow/types"
)

// checkCompletionLocked runs the completion policy for the task's type.
// It is called after every stored result; tasks already in a consensus
// round are driven by votes, not by further result arrivals.
func (c *Coordinator) checkCompletionLocked(task *types.CoordinatedTask) {
	if task.Status == types.StatusConsensus {
		return
	}

	switch task.Type {
	case types.TaskSingle:
		c.completeSingleLocked(task)
	case types.TaskCompetitive:
		c.completeCompetitiveLocked(task)
	case types.TaskParallel, types.TaskSequential:
		c.completeParallelLocked(task)
	case types.TaskConsensus:
		c.startConsensusLocked(task)
	}
}

// allReportedLocked reports whether every assigned agent has a stored
// result.
func allReported(task *types.CoordinatedTask) bool {
	for _, id := range task.AssignedAgents {
		if _, ok := task.Results[id]; !ok {
			return false
		}
	}
	return true
}

func (c *Coordinator) completeSingleLocked(task *types.CoordinatedTask) {
	results := task.ResultsInOrder()
	if len(results) == 0 {
		return
	}
	r := results[0]
	if !r.Success {
		c.failLocked(task, "assigned agent reported failure: "+r.Error)
		return
	}
	c.completeLocked(task, r.Output)
}

// completeCompetitiveLocked completes with the first successful result in
// assignment order; later reports lose regardless of quality.
func (c *Coordinator) completeCompetitiveLocked(task *types.CoordinatedTask) {
	for _, r := range task.ResultsInOrder() {
		if r.Success {
			task.Annotate(MetadataWinner, r.AgentID)
			c.completeLocked(task, r.Output)
			return
		}
	}
	if allReported(task) {
		c.failLocked(task, "no agent produced a successful result")
	}
}

// completeParallelLocked waits for every assigned agent, then completes
// directly when the successful outputs agree structurally and defers to
// the conflict resolver when they diverge.
func (c *Coordinator) completeParallelLocked(task *types.CoordinatedTask) {
	if !allReported(task) {
		return
	}
	successes := task.SuccessfulResults()
	if len(successes) == 0 {
		c.failLocked(task, "no agent produced a successful result")
		return
	}

	distinct := distinctOutputs(successes)
	if len(distinct) == 1 {
		c.completeLocked(task, successes[0].Output)
		return
	}
	c.resolveConflictLocked(task, successes, distinct)
}

// distinctOutputs returns the structurally distinct outputs in first-seen
// (assignment) order.
func distinctOutputs(results []*types.AgentResult) []any {
	seen := make(map[string]struct{}, len(results))
	out := make([]any, 0, len(results))
	for _, r := range results {
		key := types.Canonical(r.Output)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r.Output)
	}
	return out
}

func (c *Coordinator) resolveConflictLocked(task *types.CoordinatedTask, successes []*types.AgentResult, distinct []any) {
	agentIDs := make([]string, 0, len(successes))
	for _, r := range successes {
		agentIDs = append(agentIDs, r.AgentID)
	}
	c.publish(&event.ConflictDetectedEvent{TaskID: task.ID, AgentIDs: agentIDs, Timestamp_: time.Now()})

	res, err := c.resolver.Resolve(task, c.agents)
	if err != nil {
		// Resolution failure is not task failure: the distinct outputs are
		// returned as-is and the error recorded for the caller.
		c.logger.Warn("conflict resolution failed, returning distinct outputs",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		task.Annotate(MetadataConflictResolution, map[string]any{"error": err.Error()})
		c.completeLocked(task, distinct)
		return
	}

	task.Annotate(MetadataConflictResolution, res)
	c.publish(&event.ConflictResolvedEvent{
		TaskID:     task.ID,
		Strategy:   res.Strategy,
		WinnerID:   res.WinnerAgentID,
		Timestamp_: time.Now(),
	})
	if c.collector != nil {
		c.collector.ConflictResolved(res.Strategy)
	}
	c.completeLocked(task, res.Output)
}

// startConsensusLocked opens the voting round once every assigned agent
// has reported. Acceptance and failure come back through the consensus
// manager's callbacks.
func (c *Coordinator) startConsensusLocked(task *types.CoordinatedTask) {
	if !allReported(task) {
		return
	}
	if len(task.SuccessfulResults()) == 0 {
		c.failLocked(task, "no successful results to propose")
		return
	}

	task.Status = types.StatusConsensus
	proposals := c.consensus.StartConsensus(task)
	c.publish(&event.ConsensusStartedEvent{
		TaskID:     task.ID,
		Proposals:  len(proposals),
		Timestamp_: time.Now(),
	})
}

// handleConsensusAccepted finalizes a consensus task with the accepted
// proposal's output. Runs on the consensus manager's callback goroutine.
func (c *Coordinator) handleConsensusAccepted(taskID string, proposal *types.ConsensusProposal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[taskID]
	if !ok || task.Status.Terminal() {
		return
	}
	task.Annotate(MetadataConsensus, map[string]any{
		"proposal_id": proposal.ID,
		"proposer_id": proposal.ProposerID,
		"approvals":   proposal.Approvals(),
	})
	if c.collector != nil {
		c.collector.ConsensusRound("accepted")
	}
	c.completeLocked(task, proposal.Output)
}

// handleConsensusFailed times out a consensus task whose round closed
// without an accepted proposal. Timeout, not failed: no agent erred, the
// group merely failed to agree in time.
func (c *Coordinator) handleConsensusFailed(taskID string, approvals map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, ok := c.tasks[taskID]
	if !ok || task.Status.Terminal() {
		return
	}
	task.Annotate(MetadataConsensusFailure, approvals)
	if c.collector != nil {
		c.collector.ConsensusRound("failed")
	}
	c.timeoutLocked(task)
}

// handleQueueTimeout runs on the sweep goroutine after the queue has
// evicted an over-age task. The status transition happens here, under the
// same mutex as every other task mutation; a task the completion path
// already finalized is left untouched.
func (c *Coordinator) handleQueueTimeout(evicted *types.CoordinatedTask) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeQueueDepth()
	task, ok := c.tasks[evicted.ID]
	if !ok || task.Status.Terminal() {
		return
	}
	c.logger.Warn("task timed out in queue",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
	)
	c.timeoutLocked(task)
}

func (c *Coordinator) completeLocked(task *types.CoordinatedTask, output any) {
	now := time.Now()
	task.Status = types.StatusCompleted
	task.Output = output
	task.CompletedAt = &now
	c.queue.Remove(task.ID)
	c.observeQueueDepth()

	c.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.Duration("duration", taskDuration(task)),
	)
	c.publish(&event.TaskCompletedEvent{TaskID: task.ID, Output: output, Timestamp_: now})
	if c.collector != nil {
		c.collector.TaskFinished(string(task.Type), string(types.StatusCompleted), taskDuration(task))
	}
}

func (c *Coordinator) failLocked(task *types.CoordinatedTask, reason string) {
	now := time.Now()
	task.Status = types.StatusFailed
	task.CompletedAt = &now
	task.Annotate(MetadataFailureReason, reason)
	c.queue.Remove(task.ID)
	c.observeQueueDepth()

	c.logger.Warn("task failed",
		zap.String("task_id", task.ID),
		zap.String("reason", reason),
	)
	c.publish(&event.TaskFailedEvent{TaskID: task.ID, Reason: reason, Timestamp_: now})
	if c.collector != nil {
		c.collector.TaskFinished(string(task.Type), string(types.StatusFailed), taskDuration(task))
	}
}

func (c *Coordinator) timeoutLocked(task *types.CoordinatedTask) {
	now := time.Now()
	task.Status = types.StatusTimeout
	task.CompletedAt = &now
	c.queue.Remove(task.ID)
	c.observeQueueDepth()

	c.publish(&event.TaskTimeoutEvent{TaskID: task.ID, Timestamp_: now})
	if c.collector != nil {
		c.collector.TaskFinished(string(task.Type), string(types.StatusTimeout), taskDuration(task))
	}
}

func taskDuration(task *types.CoordinatedTask) time.Duration {
	start := task.CreatedAt
	if task.StartedAt != nil {
		start = *task.StartedAt
	}
	end := time.Now()
	if task.CompletedAt != nil {
		end = *task.CompletedAt
	}
	return end.Sub(start)
}

func (c *Coordinator) publish(e event.Event) {
	c.bus.Publish(e)
}

func (c *Coordinator) observeQueueDepth() {
	if c.collector != nil {
		c.collector.SetQueueDepth(c.queue.Len())
	}
}
