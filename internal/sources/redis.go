// Package sources feeds platform events into the workflow engine.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"creator-automation/backend/internal/engine"
)

// DefaultChannel is the pub/sub channel platform services publish events on.
const DefaultChannel = "creator-platform:events"

// Logger is the logging contract for event sources.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Message is the wire format of a platform event.
type Message struct {
	Trigger string         `json:"trigger"`
	Data    map[string]any `json:"data,omitempty"`
}

// RedisSource subscribes to a Redis channel and hands every message to the
// engine as a trigger.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// RedisOption configures a RedisSource.
type RedisOption func(*RedisSource)

// WithChannel sets the channel to subscribe to.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSource) {
		s.channel = channel
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) RedisOption {
	return func(s *RedisSource) {
		s.logger = l
	}
}

// NewRedisSource creates a new RedisSource.
func NewRedisSource(client *redis.Client, opts ...RedisOption) *RedisSource {
	s := &RedisSource{client: client, channel: DefaultChannel, logger: nopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes and begins delivering messages to handle. The
// subscription outlives ctx; it ends with Close.
func (s *RedisSource) Start(ctx context.Context, handle engine.TriggerHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		return errors.New("redis source already started")
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.pubsub = pubsub
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx, pubsub.Channel(), handle, s.done)
	return nil
}

// loop stops when ctx is cancelled. Deliveries run under a context Close
// never cancels, so in-flight executions finish on their own.
func (s *RedisSource) loop(ctx context.Context, ch <-chan *redis.Message, handle engine.TriggerHandler, done chan struct{}) {
	defer close(done)
	deliverCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil || m.Trigger == "" {
				s.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			go s.deliver(deliverCtx, m, handle)
		}
	}
}

func (s *RedisSource) deliver(ctx context.Context, m Message, handle engine.TriggerHandler) {
	records, err := handle(ctx, m.Trigger, m.Data)
	if err != nil {
		s.logger.Error("trigger handling failed", "trigger", m.Trigger, "error", err)
		return
	}
	s.logger.Debug("trigger handled", "trigger", m.Trigger, "executions", len(records))
}

// Close stops the subscription. Triggers already handed to the engine keep running.
func (s *RedisSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub == nil {
		return nil
	}
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	s.pubsub = nil
	return err
}

// Publish sends a platform event on the source's channel.
func (s *RedisSource) Publish(ctx context.Context, trigger string, data map[string]any) error {
	payload, err := json.Marshal(Message{Trigger: trigger, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
