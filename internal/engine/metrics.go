package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"creator-automation/backend/pkg/models"
)

const metricsNamespace = "creator_automation"

// metrics aggregates process-wide counters and mirrors them into
// Prometheus collectors.
type metrics struct {
	mu       sync.Mutex
	snap     models.EngineMetrics
	totalDur float64

	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	triggers   *prometheus.CounterVec
	active     prometheus.GaugeFunc
	registered prometheus.GaugeFunc
}

func newMetrics(activeFn, registeredFn func() float64) *metrics {
	return &metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "workflow_executions_total",
			Help:      "Workflow executions by workflow and terminal status.",
		}, []string{"workflow", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Wall time of workflow executions.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"workflow"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triggers_processed_total",
			Help:      "Triggers that admitted at least one workflow.",
		}, []string{"trigger"}),
		active: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_executions",
			Help:      "Workflow executions currently in flight.",
		}, activeFn),
		registered: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registered_workflows",
			Help:      "Workflows in the registry.",
		}, registeredFn),
	}
}

func (m *metrics) observe(workflowID string, status models.ExecutionStatus, elapsedMs float64) {
	m.mu.Lock()
	m.snap.WorkflowsExecuted++
	if status == models.ExecutionSuccess {
		m.snap.SuccessfulExecutions++
	} else {
		m.snap.FailedExecutions++
	}
	n := float64(m.snap.WorkflowsExecuted)
	m.snap.AverageExecutionTimeMs = (m.snap.AverageExecutionTimeMs*(n-1) + elapsedMs) / n
	m.mu.Unlock()

	m.executions.WithLabelValues(workflowID, string(status)).Inc()
	m.duration.WithLabelValues(workflowID).Observe(elapsedMs / 1000)
}

func (m *metrics) triggerProcessed(trigger string) {
	m.mu.Lock()
	m.snap.TriggersProcessed++
	m.mu.Unlock()
	m.triggers.WithLabelValues(trigger).Inc()
}

func (m *metrics) snapshot() models.EngineMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.executions, m.duration, m.triggers, m.active, m.registered}
}

// Collectors returns the engine's Prometheus collectors for registration.
func (e *Engine) Collectors() []prometheus.Collector {
	return e.metrics.collectors()
}
