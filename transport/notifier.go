// Package transport defines the assignment notification boundary. The
// engine emits one notification per (task, agent) pair; delivering it to
// the actual agent is the host's responsibility, under an at-least-once,
// idempotent-on-duplicate model.
package transport

import (
	"context"
	"time"

	"github.com/BaSui01/coordflow/types"
)

// AssignmentNotification tells one agent it has been assigned a task.
type AssignmentNotification struct {
	TaskID      string         `json:"task_id"`
	AgentID     string         `json:"agent_id"`
	TaskType    types.TaskType `json:"task_type"`
	Description string         `json:"description,omitempty"`
	Input       any            `json:"input,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	AssignedAt  time.Time      `json:"assigned_at"`
}

// Notifier delivers assignment notifications to the host's transport.
// Implementations may be in-process callbacks, queue producers, or
// webhook clients; errors are logged by the coordinator and never fail
// the assignment.
type Notifier interface {
	NotifyAssignment(ctx context.Context, n AssignmentNotification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n AssignmentNotification) error

// NotifyAssignment implements Notifier.
func (f NotifierFunc) NotifyAssignment(ctx context.Context, n AssignmentNotification) error {
	return f(ctx, n)
}
