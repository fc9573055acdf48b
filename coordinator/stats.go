package coordinator

import (
	"time"

	"github.com/BaSui01/coordflow/types"
)

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	RegisteredAgents int                      `json:"registered_agents"`
	TotalTasks       int                      `json:"total_tasks"`
	QueueDepth       int                      `json:"queue_depth"`
	TasksByStatus    map[types.TaskStatus]int `json:"tasks_by_status"`
	CompletedTasks   int                      `json:"completed_tasks"`
	// MeanDuration averages assignment-to-completion over completed
	// tasks; zero when none have completed.
	MeanDuration time.Duration `json:"mean_duration_ms"`
}

// GetStats computes a snapshot under the coordinator lock.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		RegisteredAgents: len(c.agents),
		TotalTasks:       len(c.tasks),
		QueueDepth:       c.queue.Len(),
		TasksByStatus:    make(map[types.TaskStatus]int, 6),
	}

	var total time.Duration
	for _, task := range c.tasks {
		stats.TasksByStatus[task.Status]++
		if task.Status == types.StatusCompleted && task.CompletedAt != nil {
			start := task.CreatedAt
			if task.StartedAt != nil {
				start = *task.StartedAt
			}
			total += task.CompletedAt.Sub(start)
			stats.CompletedTasks++
		}
	}
	if stats.CompletedTasks > 0 {
		stats.MeanDuration = total / time.Duration(stats.CompletedTasks)
	}
	return stats
}
