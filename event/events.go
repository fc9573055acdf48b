package event

import (
	"time"

	"github.com/BaSui01/coordflow/types"
)

// Type identifies an event on the observation feed.
type Type string

const (
	TypeTaskCreated        Type = "task_created"
	TypeTaskAssigned       Type = "task_assigned"
	TypeTaskCompleted      Type = "task_completed"
	TypeTaskFailed         Type = "task_failed"
	TypeTaskTimeout        Type = "task_timeout"
	TypeResultSubmitted    Type = "result_submitted"
	TypeConsensusStarted   Type = "consensus_started"
	TypeConsensusReached   Type = "consensus_reached"
	TypeConsensusFailed    Type = "consensus_failed"
	TypeProposalCreated    Type = "proposal_created"
	TypeVoteSubmitted      Type = "vote_submitted"
	TypeConflictDetected   Type = "conflict_detected"
	TypeConflictResolved   Type = "conflict_resolved"
	TypeAssignmentNotified Type = "assignment_notified"
)

// Event is anything the engine publishes on the feed.
type Event interface {
	Timestamp() time.Time
	Type() Type
}

// TaskCreatedEvent fires when a task enters the system in pending status.
type TaskCreatedEvent struct {
	TaskID     string         `json:"task_id"`
	TaskType   types.TaskType `json:"task_type"`
	Timestamp_ time.Time      `json:"timestamp"`
}

func (e *TaskCreatedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *TaskCreatedEvent) Type() Type           { return TypeTaskCreated }

// TaskAssignedEvent fires once per task on successful assignment.
type TaskAssignedEvent struct {
	TaskID     string    `json:"task_id"`
	AgentIDs   []string  `json:"agent_ids"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *TaskAssignedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *TaskAssignedEvent) Type() Type           { return TypeTaskAssigned }

// TaskCompletedEvent fires when a task reaches completed.
type TaskCompletedEvent struct {
	TaskID     string    `json:"task_id"`
	Output     any       `json:"output,omitempty"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *TaskCompletedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *TaskCompletedEvent) Type() Type           { return TypeTaskCompleted }

// TaskFailedEvent fires when a task reaches failed.
type TaskFailedEvent struct {
	TaskID     string    `json:"task_id"`
	Reason     string    `json:"reason"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *TaskFailedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *TaskFailedEvent) Type() Type           { return TypeTaskFailed }

// TaskTimeoutEvent fires when the queue sweep or a consensus round times
// a task out. Timeout is a terminal status, not an error.
type TaskTimeoutEvent struct {
	TaskID     string    `json:"task_id"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *TaskTimeoutEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *TaskTimeoutEvent) Type() Type           { return TypeTaskTimeout }

// ResultSubmittedEvent fires on every accepted result submission,
// including overwrites.
type ResultSubmittedEvent struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	Success    bool      `json:"success"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ResultSubmittedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ResultSubmittedEvent) Type() Type           { return TypeResultSubmitted }

// ConsensusStartedEvent fires when a consensus task moves into voting.
type ConsensusStartedEvent struct {
	TaskID     string    `json:"task_id"`
	Proposals  int       `json:"proposals"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ConsensusStartedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ConsensusStartedEvent) Type() Type           { return TypeConsensusStarted }

// ConsensusReachedEvent fires when a proposal is accepted.
type ConsensusReachedEvent struct {
	TaskID     string    `json:"task_id"`
	ProposalID string    `json:"proposal_id"`
	Approvals  int       `json:"approvals"`
	Ratio      float64   `json:"ratio"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ConsensusReachedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ConsensusReachedEvent) Type() Type           { return TypeConsensusReached }

// ConsensusFailedEvent fires when no proposal reaches the acceptance
// ratio before the round deadline, with per-proposal approval counts.
type ConsensusFailedEvent struct {
	TaskID     string         `json:"task_id"`
	Approvals  map[string]int `json:"approvals"` // proposal ID -> approvals
	Timestamp_ time.Time      `json:"timestamp"`
}

func (e *ConsensusFailedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ConsensusFailedEvent) Type() Type           { return TypeConsensusFailed }

// ProposalCreatedEvent fires for each distinct output group at the start
// of a consensus round.
type ProposalCreatedEvent struct {
	TaskID     string    `json:"task_id"`
	ProposalID string    `json:"proposal_id"`
	ProposerID string    `json:"proposer_id"`
	Approvals  int       `json:"approvals"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ProposalCreatedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ProposalCreatedEvent) Type() Type           { return TypeProposalCreated }

// VoteSubmittedEvent fires on every accepted vote.
type VoteSubmittedEvent struct {
	TaskID     string    `json:"task_id"`
	ProposalID string    `json:"proposal_id"`
	AgentID    string    `json:"agent_id"`
	Approve    bool      `json:"approve"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *VoteSubmittedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *VoteSubmittedEvent) Type() Type           { return TypeVoteSubmitted }

// ConflictDetectedEvent fires when a parallel task's successful outputs
// diverge structurally.
type ConflictDetectedEvent struct {
	TaskID     string    `json:"task_id"`
	AgentIDs   []string  `json:"agent_ids"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ConflictDetectedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ConflictDetectedEvent) Type() Type           { return TypeConflictDetected }

// ConflictResolvedEvent fires with the applied resolution.
type ConflictResolvedEvent struct {
	TaskID     string    `json:"task_id"`
	Strategy   string    `json:"strategy"`
	WinnerID   string    `json:"winner_id,omitempty"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *ConflictResolvedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *ConflictResolvedEvent) Type() Type           { return TypeConflictResolved }

// AssignmentNotifiedEvent fires once per (task, agent) pair handed to the
// transport notifier. Delivery to the agent is the host's responsibility.
type AssignmentNotifiedEvent struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	Timestamp_ time.Time `json:"timestamp"`
}

func (e *AssignmentNotifiedEvent) Timestamp() time.Time { return e.Timestamp_ }
func (e *AssignmentNotifiedEvent) Type() Type           { return TypeAssignmentNotified }
