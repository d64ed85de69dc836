// Package engine implements the trigger-driven workflow automation engine:
// a registry of declarative workflows, condition evaluation, admission
// control, priority scheduling, sequential action execution and a bounded
// execution ledger.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"creator-automation/backend/internal/logging"
	"creator-automation/backend/pkg/models"
)

const tracerName = "creator-automation/backend/internal/engine"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ActionDispatcher resolves a target service and operation to an external call.
// Implementations must be safe to call more than once for the same action.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, service, operation string, params map[string]any) (any, error)
}

// MetricFetcher resolves condition types that are not present on the event.
type MetricFetcher interface {
	FetchMetric(ctx context.Context, metricType string, event map[string]any) (any, error)
}

// AlertSink receives alerts raised by the send-alert action.
type AlertSink interface {
	RaiseAlert(ctx context.Context, alert models.Alert)
}

// TriggerHandler is the entry point event sources deliver triggers to.
type TriggerHandler func(ctx context.Context, trigger string, data map[string]any) ([]*models.ExecutionRecord, error)

// EventSource is an upstream producer of triggers.
type EventSource interface {
	// Start begins delivering triggers to handler. It must not block.
	Start(ctx context.Context, handler TriggerHandler) error
	Close() error
}

// Config holds the engine tunables.
type Config struct {
	MaxConcurrentWorkflows int
	Retention              time.Duration
	SweepSchedule          string
	ShutdownTimeout        time.Duration
	DrainPollInterval      time.Duration
	MaxTriggerDepth        int
	// ActionTimeout bounds each action when positive.
	ActionTimeout time.Duration
	SeedDefaults  bool
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentWorkflows: 50,
		Retention:              30 * 24 * time.Hour,
		SweepSchedule:          "@every 1h",
		ShutdownTimeout:        30 * time.Second,
		DrainPollInterval:      100 * time.Millisecond,
		MaxTriggerDepth:        5,
		SeedDefaults:           true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrentWorkflows <= 0 {
		c.MaxConcurrentWorkflows = d.MaxConcurrentWorkflows
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = d.SweepSchedule
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.DrainPollInterval <= 0 {
		c.DrainPollInterval = d.DrainPollInterval
	}
	if c.MaxTriggerDepth <= 0 {
		c.MaxTriggerDepth = d.MaxTriggerDepth
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher sets the external action dispatcher.
func WithDispatcher(d ActionDispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithMetricFetcher sets the metric fetcher used by conditions.
func WithMetricFetcher(f MetricFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithAlertSink sets the sink for send-alert actions.
func WithAlertSink(s AlertSink) Option {
	return func(e *Engine) { e.alerts = s }
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEventSources adds upstream trigger sources started by Initialize.
func WithEventSources(sources ...EventSource) Option {
	return func(e *Engine) { e.sources = append(e.sources, sources...) }
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// Engine routes triggers to workflows and runs them.
type Engine struct {
	cfg        Config
	logger     Logger
	dispatcher ActionDispatcher
	fetcher    MetricFetcher
	alerts     AlertSink
	sources    []EventSource
	now        func() time.Time
	tracer     trace.Tracer

	registry  *registry
	evaluator *conditionEvaluator
	active    *activeSet
	slots     *semaphore.Weighted
	ledger    *ledger
	metrics   *metrics
	bus       *EventBus

	running   atomic.Bool
	abandoned atomic.Bool

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates an Engine. Zero-valued Config fields take their defaults.
func New(cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		logger:   logging.Discard(),
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		registry: newRegistry(),
		active:   newActiveSet(),
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrentWorkflows)),
		ledger:   newLedger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bus = NewEventBus(e.logger)
	e.evaluator = &conditionEvaluator{fetcher: e.fetcher, logger: e.logger, now: e.now}
	e.metrics = newMetrics(
		func() float64 { return float64(e.active.len()) },
		func() float64 { return float64(e.registry.len()) },
	)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Events returns the notification bus.
func (e *Engine) Events() *EventBus { return e.bus }

// Subscribe registers a listener for one notification type.
func (e *Engine) Subscribe(t EventType, l Listener) { e.bus.Subscribe(t, l) }

// SubscribeAll registers a listener for every notification.
func (e *Engine) SubscribeAll(l Listener) { e.bus.SubscribeAll(l) }

// GetStats returns workflow counts, live executions and process metrics.
func (e *Engine) GetStats() models.Stats {
	total, active, paused := e.registry.counts()
	m := e.metrics.snapshot()
	return models.Stats{
		TotalWorkflows:   total,
		ActiveWorkflows:  active,
		PausedWorkflows:  paused,
		ActiveExecutions: e.active.len(),
		Triggers:         e.registry.triggerCount(),
		Running:          e.running.Load(),
		Metrics:          m,
		SuccessRate:      m.SuccessRate(),
	}
}

// ActiveExecutions returns the runs currently in flight.
func (e *Engine) ActiveExecutions() []models.ActiveExecution {
	return e.active.list()
}

func (e *Engine) publish(ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	e.bus.Publish(ev)
}
