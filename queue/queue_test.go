package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/coordflow/types"
)

func newTask(id string, age time.Duration) *types.CoordinatedTask {
	return &types.CoordinatedTask{
		ID:        id,
		Type:      types.TaskSingle,
		Status:    types.StatusPending,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestTaskQueue_PriorityOrdering(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 4, MaxSize: 16}, nil)

	require.True(t, q.Enqueue(newTask("low", 0), 3))
	require.True(t, q.Enqueue(newTask("high", 0), 0))
	require.True(t, q.Enqueue(newTask("mid", 0), 1))

	assert.Equal(t, "high", q.Dequeue().ID)
	assert.Equal(t, "mid", q.Dequeue().ID)
	assert.Equal(t, "low", q.Dequeue().ID)
	assert.Nil(t, q.Dequeue())
}

func TestTaskQueue_FIFOWithinLevel(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16}, nil)

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(newTask(fmt.Sprintf("t%d", i), 0), 1))
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("t%d", i), q.Dequeue().ID)
	}
}

func TestTaskQueue_BoundedRejection(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 2}, nil)

	require.True(t, q.Enqueue(newTask("a", 0), 0))
	require.True(t, q.Enqueue(newTask("b", 0), 1))
	assert.False(t, q.Enqueue(newTask("c", 0), 0), "queue at capacity must reject")
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.Contains("c"))

	// Rejection frees nothing; draining one slot admits one task.
	q.Dequeue()
	assert.True(t, q.Enqueue(newTask("c", 0), 0))
}

func TestTaskQueue_PriorityClamping(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 3, MaxSize: 16}, nil)

	require.True(t, q.Enqueue(newTask("over", 0), 99))
	require.True(t, q.Enqueue(newTask("under", 0), -5))

	// -5 clamps to 0, 99 clamps to 2.
	assert.Equal(t, "under", q.Dequeue().ID)
	assert.Equal(t, "over", q.Dequeue().ID)
}

func TestTaskQueue_UpdatePriorityMovesToTail(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16}, nil)

	require.True(t, q.Enqueue(newTask("a", 0), 0))
	require.True(t, q.Enqueue(newTask("b", 0), 0))
	require.True(t, q.Enqueue(newTask("c", 0), 1))

	require.True(t, q.UpdatePriority("c", 0))
	require.False(t, q.UpdatePriority("missing", 0))

	assert.Equal(t, "a", q.Dequeue().ID)
	assert.Equal(t, "b", q.Dequeue().ID)
	assert.Equal(t, "c", q.Dequeue().ID, "re-prioritized task goes to the tail")
}

func TestTaskQueue_Remove(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16}, nil)

	require.True(t, q.Enqueue(newTask("a", 0), 0))
	require.True(t, q.Enqueue(newTask("b", 0), 0))

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "b", q.Dequeue().ID)
}

func TestTaskQueue_SweepEvictsOldTasks(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16, TaskTimeout: time.Minute}, nil)

	var evicted []string
	q.SetTimeoutHandler(func(task *types.CoordinatedTask) {
		evicted = append(evicted, task.ID)
	})

	old := newTask("old", 2*time.Minute)
	oldAssigned := newTask("old_assigned", 3*time.Minute)
	oldAssigned.Status = types.StatusAssigned
	fresh := newTask("fresh", 0)
	require.True(t, q.Enqueue(old, 0))
	require.True(t, q.Enqueue(oldAssigned, 1))
	require.True(t, q.Enqueue(fresh, 0))

	n := q.Sweep(time.Now())

	require.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"old", "old_assigned"}, evicted)
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Contains("fresh"))
	assert.False(t, q.Contains("old"))
	assert.False(t, q.Contains("old_assigned"), "assignment does not shield from the sweep")
}

func TestTaskQueue_SweepLeavesTaskStateToHandler(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16, TaskTimeout: time.Minute}, nil)

	var seen []types.TaskStatus
	q.SetTimeoutHandler(func(task *types.CoordinatedTask) {
		seen = append(seen, task.Status)
	})

	old := newTask("old", 2*time.Minute)
	require.True(t, q.Enqueue(old, 0))

	require.Equal(t, 1, q.Sweep(time.Now()))

	// The queue only evicts; the handler decides the transition under its
	// own lock, so the task arrives with its state untouched.
	require.Equal(t, []types.TaskStatus{types.StatusPending}, seen)
	assert.Equal(t, types.StatusPending, old.Status)
	assert.Nil(t, old.CompletedAt)
}

func TestTaskQueue_StartStopSweepLoop(t *testing.T) {
	q := NewTaskQueue(Config{
		Levels:        2,
		MaxSize:       16,
		TaskTimeout:   time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	}, nil)

	timedOut := make(chan string, 1)
	q.SetTimeoutHandler(func(task *types.CoordinatedTask) { timedOut <- task.ID })

	require.True(t, q.Enqueue(newTask("t1", time.Second), 0))
	q.Start()
	defer q.Stop()

	select {
	case id := <-timedOut:
		assert.Equal(t, "t1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep loop never fired")
	}

	q.Stop()
	q.Stop() // idempotent
}

func TestTaskQueue_DrainCollectsFailures(t *testing.T) {
	q := NewTaskQueue(Config{Levels: 2, MaxSize: 16, DrainConcurrency: 2}, nil)

	for i := 0; i < 6; i++ {
		require.True(t, q.Enqueue(newTask(fmt.Sprintf("t%d", i), 0), i%2))
	}

	boom := errors.New("boom")
	failures := q.Drain(context.Background(), func(_ context.Context, task *types.CoordinatedTask) error {
		if task.ID == "t2" || task.ID == "t5" {
			return boom
		}
		return nil
	})

	assert.Equal(t, 0, q.Len())
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures["t2"], boom)
	assert.ErrorIs(t, failures["t5"], boom)
}
