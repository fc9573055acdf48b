package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coordflow/event"
)

const appendTimeout = 5 * time.Second

// Recorder subscribes to the observation feed and persists every event.
// Writes happen on the bus dispatch goroutines; a failed write is logged
// and dropped, never retried.
type Recorder struct {
	store  EventStore
	bus    event.Bus
	subID  string
	logger *zap.Logger
}

// NewRecorder attaches a recorder to the bus.
func NewRecorder(store EventStore, bus event.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:  store,
		bus:    bus,
		logger: logger.With(zap.String("component", "event_recorder")),
	}
	r.subID = bus.SubscribeAll(r.record)
	return r
}

func (r *Recorder) record(e event.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		r.logger.Warn("failed to marshal event", zap.String("event_type", string(e.Type())), zap.Error(err))
		return
	}

	rec := &EventRecord{
		EventType: string(e.Type()),
		Payload:   string(payload),
		CreatedAt: e.Timestamp(),
	}
	// Every event type carries task_id and some carry agent_id; pull them
	// out of the payload so the columns stay queryable.
	var fields struct {
		TaskID  string `json:"task_id"`
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(payload, &fields); err == nil {
		rec.TaskID = fields.TaskID
		rec.AgentID = fields.AgentID
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Warn("failed to persist event",
			zap.String("event_type", rec.EventType),
			zap.String("task_id", rec.TaskID),
			zap.Error(err),
		)
	}
}

// Close detaches the recorder from the bus. The underlying store is not
// closed; the caller owns it.
func (r *Recorder) Close() {
	r.bus.Unsubscribe(r.subID)
}
