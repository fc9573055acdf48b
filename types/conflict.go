package types

import "time"

// Resolution is the outcome of reconciling divergent outputs.
type Resolution struct {
	Strategy      string         `json:"strategy"`
	WinnerAgentID string         `json:"winner_agent_id,omitempty"`
	Output        any            `json:"output,omitempty"`
	VoteCounts    map[string]int `json:"vote_counts,omitempty"` // canonical output -> occurrences
}

// ConflictEvent records a divergence among successful outputs for one task
// and, once resolved, the resolution applied. Events are retained in
// memory for audit.
type ConflictEvent struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	AgentIDs   []string       `json:"agent_ids"`
	Outputs    map[string]any `json:"outputs"` // agent ID -> output
	Resolution *Resolution    `json:"resolution,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}
