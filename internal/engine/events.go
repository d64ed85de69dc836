package engine

import (
	"sync"
	"time"

	"creator-automation/backend/pkg/models"
)

// EventType names an engine lifecycle notification.
type EventType string

const (
	EventEngineReady           EventType = "engine.ready"
	EventEngineShutdown        EventType = "engine.shutdown"
	EventWorkflowRegistered    EventType = "workflow.registered"
	EventWorkflowStatusChanged EventType = "workflow.status_changed"
	EventWorkflowStarted       EventType = "workflow.started"
	EventWorkflowCompleted     EventType = "workflow.completed"
	EventWorkflowFailed        EventType = "workflow.failed"
	EventTriggerError          EventType = "trigger.error"
)

// Event is a notification published by the engine.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	WorkflowID  string
	ExecutionID string
	Trigger     string
	// Record is set on completed and failed notifications.
	Record *models.ExecutionRecord
	Error  string
	Data   map[string]any
}

// Listener handles engine notifications.
type Listener func(*Event)

// EventBus fans notifications out to listeners. Notifications are
// delivered off the publisher's goroutine by a single worker, in publish
// order, so a listener sees workflow.started before workflow.completed for
// the same execution. A slow listener delays later notifications.
type EventBus struct {
	logger Logger

	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener

	qmu      sync.Mutex
	queue    []delivery
	draining bool
}

type delivery struct {
	ev      *Event
	targets []Listener
}

// NewEventBus creates an empty bus. Listener panics are reported to logger.
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{logger: logger, listeners: make(map[EventType][]Listener)}
}

// Subscribe registers a listener for one event type.
func (b *EventBus) Subscribe(t EventType, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], l)
}

// SubscribeAll registers a listener for every event type.
func (b *EventBus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, l)
}

// Publish queues ev for the listeners subscribed at the time of the call.
// It never blocks on listeners.
func (b *EventBus) Publish(ev *Event) {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.listeners[ev.Type])+len(b.globalListeners))
	targets = append(targets, b.listeners[ev.Type]...)
	targets = append(targets, b.globalListeners...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	b.qmu.Lock()
	b.queue = append(b.queue, delivery{ev: ev, targets: targets})
	if b.draining {
		b.qmu.Unlock()
		return
	}
	b.draining = true
	b.qmu.Unlock()
	go b.drain()
}

// drain runs until the queue is empty; Publish starts a new one afterwards.
func (b *EventBus) drain() {
	for {
		b.qmu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.qmu.Unlock()
			return
		}
		d := b.queue[0]
		b.queue[0] = delivery{}
		b.queue = b.queue[1:]
		b.qmu.Unlock()

		for _, l := range d.targets {
			b.safeInvoke(l, d.ev)
		}
	}
}

func (b *EventBus) safeInvoke(l Listener, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"event", ev.Type, "workflow_id", ev.WorkflowID, "execution_id", ev.ExecutionID, "panic", r)
		}
	}()
	l(ev)
}
