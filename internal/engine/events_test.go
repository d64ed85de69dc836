package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator-automation/backend/internal/logging"
)

// recordingLogger keeps the messages logged at error level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]any{msg}, args...)...))
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestEventBus_PublishFanOut(t *testing.T) {
	bus := NewEventBus(logging.Discard())

	var mu sync.Mutex
	var got []string
	record := func(name string) Listener {
		return func(ev *Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+string(ev.Type))
		}
	}
	bus.Subscribe(EventWorkflowStarted, record("typed"))
	bus.Subscribe(EventWorkflowStarted, func(*Event) { panic("bad listener") })
	bus.SubscribeAll(record("global"))

	bus.Publish(&Event{Type: EventWorkflowStarted})
	bus.Publish(&Event{Type: EventEngineReady})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"typed:workflow.started",
		"global:workflow.started",
		"global:engine.ready",
	}, got)
}

func TestEventBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewEventBus(logging.Discard())

	const runs = 200
	seen := make(chan *Event, 2*runs)
	bus.SubscribeAll(func(ev *Event) { seen <- ev })

	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("exec-%d", i)
		bus.Publish(&Event{Type: EventWorkflowStarted, ExecutionID: id})
		bus.Publish(&Event{Type: EventWorkflowCompleted, ExecutionID: id})
	}

	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("exec-%d", i)
		for _, want := range []EventType{EventWorkflowStarted, EventWorkflowCompleted} {
			select {
			case ev := <-seen:
				require.Equal(t, id, ev.ExecutionID)
				require.Equal(t, want, ev.Type)
			case <-time.After(2 * time.Second):
				t.Fatalf("missing %s for %s", want, id)
			}
		}
	}
}

func TestEventBus_ListenerPanicIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	bus := NewEventBus(logger)

	delivered := make(chan struct{}, 1)
	bus.Subscribe(EventWorkflowFailed, func(*Event) { panic("archive unavailable") })
	bus.Subscribe(EventWorkflowFailed, func(*Event) { delivered <- struct{}{} })

	bus.Publish(&Event{Type: EventWorkflowFailed, WorkflowID: "payment-failure-escalation"})

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("listener after the panicking one was not called")
	}
	require.Equal(t, 1, logger.errorCount())
	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.errors[0], "event listener panicked")
	assert.Contains(t, logger.errors[0], "archive unavailable")
}

func TestEventBus_NoListeners(t *testing.T) {
	bus := NewEventBus(logging.Discard())
	assert.NotPanics(t, func() { bus.Publish(&Event{Type: EventTriggerError}) })
}
