package event

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// subscriptionCounter generates unique subscription IDs; an atomic counter
// avoids collisions under concurrent Subscribe calls.
var subscriptionCounter int64

// typeAll is the reserved bucket for SubscribeAll handlers.
const typeAll Type = "*"

// Handler consumes a published event. Handlers run on their own
// goroutines; a panicking handler is recovered and logged.
type Handler func(Event)

// Bus is the observation feed of the engine. Hosts subscribe for
// logging, telemetry, or persistence; the engine never blocks on it.
type Bus interface {
	Publish(event Event)
	Subscribe(eventType Type, handler Handler) string
	SubscribeAll(handler Handler) string
	Unsubscribe(subscriptionID string)
	Stop()
}

// SimpleBus is a buffered, asynchronous Bus implementation.
type SimpleBus struct {
	mu           sync.RWMutex
	handlers     map[Type]map[string]Handler
	eventChannel chan Event
	done         chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

// NewBus creates a new event bus and starts its dispatch loop.
func NewBus(logger *zap.Logger) Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &SimpleBus{
		handlers:     make(map[Type]map[string]Handler),
		eventChannel: make(chan Event, 256),
		done:         make(chan struct{}),
		logger:       logger.With(zap.String("component", "event_bus")),
	}
	go bus.processEvents()
	return bus
}

// Publish enqueues an event for dispatch. If the buffer is full the event
// is dropped; the feed is observational and must never block a state
// mutation.
func (b *SimpleBus) Publish(event Event) {
	select {
	case b.eventChannel <- event:
	case <-b.done:
	default:
		b.logger.Warn("event buffer full, dropping event", zap.String("type", string(event.Type())))
	}
}

// Subscribe registers a handler for one event type.
func (b *SimpleBus) Subscribe(eventType Type, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}

	id := fmt.Sprintf("%s-%d", eventType, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[eventType][id] = handler
	return id
}

// SubscribeAll registers a handler invoked for every published event.
func (b *SimpleBus) SubscribeAll(handler Handler) string {
	return b.Subscribe(typeAll, handler)
}

// Unsubscribe removes a subscription by ID.
func (b *SimpleBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, eventType)
			}
			return
		}
	}
}

func (b *SimpleBus) processEvents() {
	for {
		select {
		case event := <-b.eventChannel:
			b.mu.RLock()
			handlers := make([]Handler, 0, len(b.handlers[event.Type()])+len(b.handlers[typeAll]))
			for _, h := range b.handlers[event.Type()] {
				handlers = append(handlers, h)
			}
			for _, h := range b.handlers[typeAll] {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				h := handler
				go func() {
					defer func() {
						if r := recover(); r != nil {
							b.logger.Error("event handler panicked", zap.Any("recover", r))
						}
					}()
					h(event)
				}()
			}
		case <-b.done:
			return
		}
	}
}

// Stop shuts down the dispatch loop. Pending buffered events are dropped.
func (b *SimpleBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}
