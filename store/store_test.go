package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/coordflow/event"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore_AppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, taskID := range []string{"task_1", "task_1", "task_2"} {
		require.NoError(t, s.Append(ctx, &EventRecord{
			EventType: "task_created",
			TaskID:    taskID,
			AgentID:   "agent_a",
			Payload:   `{"n":` + string(rune('0'+i)) + `}`,
			CreatedAt: time.Now(),
		}))
	}

	byTask, err := s.ByTask(ctx, "task_1")
	require.NoError(t, err)
	require.Len(t, byTask, 2)
	assert.Less(t, byTask[0].ID, byTask[1].ID, "insertion order")

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "task_2", recent[0].TaskID, "newest first")
}

func TestRecorder_PersistsBusEvents(t *testing.T) {
	s := openTestStore(t)
	bus := event.NewBus(nil)
	defer bus.Stop()

	rec := NewRecorder(s, bus, nil)
	defer rec.Close()

	bus.Publish(&event.TaskCreatedEvent{TaskID: "task_1", Timestamp_: time.Now()})
	bus.Publish(&event.ResultSubmittedEvent{
		TaskID:     "task_1",
		AgentID:    "agent_a",
		Success:    true,
		Timestamp_: time.Now(),
	})

	require.Eventually(t, func() bool {
		recs, err := s.ByTask(context.Background(), "task_1")
		return err == nil && len(recs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := s.ByTask(context.Background(), "task_1")
	require.NoError(t, err)

	byType := make(map[string]EventRecord, len(recs))
	for _, r := range recs {
		byType[r.EventType] = r
	}
	created, ok := byType[string(event.TypeTaskCreated)]
	require.True(t, ok)
	assert.Equal(t, "task_1", created.TaskID)

	submitted, ok := byType[string(event.TypeResultSubmitted)]
	require.True(t, ok)
	assert.Equal(t, "agent_a", submitted.AgentID)
	assert.Contains(t, submitted.Payload, `"success":true`)
}

func TestRecorder_CloseStopsRecording(t *testing.T) {
	s := openTestStore(t)
	bus := event.NewBus(nil)
	defer bus.Stop()

	rec := NewRecorder(s, bus, nil)
	rec.Close()

	bus.Publish(&event.TaskCreatedEvent{TaskID: "task_1", Timestamp_: time.Now()})
	time.Sleep(100 * time.Millisecond)

	recs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
