package types

import (
	"time"
)

// TaskType controls how a task is dispatched to agents and how its
// completion is decided.
type TaskType string

const (
	// TaskSingle dispatches to the single highest-priority eligible agent.
	TaskSingle TaskType = "single"
	// TaskParallel dispatches to multiple agents; divergent outputs are
	// reconciled by the conflict resolver.
	TaskParallel TaskType = "parallel"
	// TaskSequential dispatches to all eligible agents. Collection is
	// identical to parallel; no one-at-a-time ordering is enforced.
	TaskSequential TaskType = "sequential"
	// TaskConsensus dispatches to multiple agents and requires a voting
	// round to accept an output.
	TaskConsensus TaskType = "consensus"
	// TaskCompetitive completes with the first successful result.
	TaskCompetitive TaskType = "competitive"
)

// TaskStatus is the task lifecycle state.
// Transitions: pending -> assigned -> [consensus] -> completed|failed|timeout.
// The only path out of pending besides assigned is failed, when no agent
// is eligible.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusAssigned  TaskStatus = "assigned"
	StatusConsensus TaskStatus = "consensus"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusTimeout   TaskStatus = "timeout"
)

// Terminal reports whether the status admits no further transition.
// Terminal tasks are immutable aside from metadata annotation.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// AgentResult is one agent's report for a task.
type AgentResult struct {
	AgentID    string        `json:"agent_id"`
	Success    bool          `json:"success"`
	Output     any           `json:"output,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"` // in [0,1] when set
	Duration   time.Duration `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// CoordinatedTask is a unit of work tracked by the coordinator.
// Results are keyed by agent ID; a re-submission overwrites.
type CoordinatedTask struct {
	ID                   string                  `json:"id"`
	Type                 TaskType                `json:"type"`
	Description          string                  `json:"description"`
	RequiredCapabilities []string                `json:"required_capabilities,omitempty"`
	Input                any                     `json:"input,omitempty"`
	Status               TaskStatus              `json:"status"`
	AssignedAgents       []string                `json:"assigned_agents,omitempty"`
	Results              map[string]*AgentResult `json:"results,omitempty"`
	Output               any                     `json:"output,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	StartedAt            *time.Time              `json:"started_at,omitempty"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
	Metadata             map[string]any          `json:"metadata,omitempty"`
}

// IsAssigned reports whether agentID is in the task's assigned set.
func (t *CoordinatedTask) IsAssigned(agentID string) bool {
	for _, id := range t.AssignedAgents {
		if id == agentID {
			return true
		}
	}
	return false
}

// SuccessfulResults returns the successful results in assignment order.
// Assignment order is the canonical iteration order for "first result"
// semantics; map iteration is never used for it.
func (t *CoordinatedTask) SuccessfulResults() []*AgentResult {
	results := make([]*AgentResult, 0, len(t.Results))
	for _, id := range t.AssignedAgents {
		if r, ok := t.Results[id]; ok && r.Success {
			results = append(results, r)
		}
	}
	return results
}

// ResultsInOrder returns all submitted results in assignment order.
func (t *CoordinatedTask) ResultsInOrder() []*AgentResult {
	results := make([]*AgentResult, 0, len(t.Results))
	for _, id := range t.AssignedAgents {
		if r, ok := t.Results[id]; ok {
			results = append(results, r)
		}
	}
	return results
}

// Clone returns a deep copy safe to read without holding the lock that
// guards the original.
func (t *CoordinatedTask) Clone() *CoordinatedTask {
	cp := *t
	cp.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	cp.AssignedAgents = append([]string(nil), t.AssignedAgents...)
	if t.Results != nil {
		cp.Results = make(map[string]*AgentResult, len(t.Results))
		for id, r := range t.Results {
			rc := *r
			cp.Results[id] = &rc
		}
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		cp.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Annotate sets a metadata key. Metadata remains writable after the task
// reaches a terminal status.
func (t *CoordinatedTask) Annotate(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}
