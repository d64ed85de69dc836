// Package models defines the domain models for the workflow automation engine
package models

import (
	"maps"
	"slices"
	"time"
)

// ExecutionStatus is the terminal state of a workflow run.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ActionStatus is the outcome of a single action within a run.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// ActionOutcome records what happened to one action of a run.
type ActionOutcome struct {
	Index     int          `json:"index"`
	Target    string       `json:"target"`
	Operation string       `json:"operation"`
	Status    ActionStatus `json:"status"`
	Result    any          `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ExecutionRecord is the immutable outcome of one workflow run.
type ExecutionRecord struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	Trigger     string          `json:"trigger,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	DurationMs  float64         `json:"duration_ms"`
	Status      ExecutionStatus `json:"status"`
	Actions     []ActionOutcome `json:"actions"`
	EventData   map[string]any  `json:"event_data,omitempty"`
	// Error is set only when a critical action aborted the run.
	Error string `json:"error,omitempty"`
}

// Clone returns a copy of r whose slices and maps are not shared.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	c := *r
	c.Actions = slices.Clone(r.Actions)
	c.EventData = maps.Clone(r.EventData)
	return &c
}

// ActiveExecution describes a run that has started but not finished.
type ActiveExecution struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	StartTime   time.Time       `json:"start_time"`
	Status      ExecutionStatus `json:"status"`
	EventData   map[string]any  `json:"event_data,omitempty"`
}

// AlertSeverity classifies alerts raised by workflows.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a fire-and-forget notification forwarded to the alerting sink.
type Alert struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Severity AlertSeverity  `json:"severity"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EngineMetrics are process-wide counters, reset only on restart.
type EngineMetrics struct {
	WorkflowsExecuted      int64   `json:"workflows_executed"`
	SuccessfulExecutions   int64   `json:"successful_executions"`
	FailedExecutions       int64   `json:"failed_executions"`
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`
	TriggersProcessed      int64   `json:"triggers_processed"`
}

// SuccessRate returns the percentage of successful executions, or 0 when
// nothing has run yet.
func (m EngineMetrics) SuccessRate() float64 {
	if m.WorkflowsExecuted == 0 {
		return 0
	}
	return float64(m.SuccessfulExecutions) / float64(m.WorkflowsExecuted) * 100
}

// Stats is the operator view returned by the engine.
type Stats struct {
	TotalWorkflows   int           `json:"total_workflows"`
	ActiveWorkflows  int           `json:"active_workflows"`
	PausedWorkflows  int           `json:"paused_workflows"`
	ActiveExecutions int           `json:"active_executions"`
	Triggers         int           `json:"triggers"`
	Running          bool          `json:"running"`
	Metrics          EngineMetrics `json:"metrics"`
	SuccessRate      float64       `json:"success_rate"`
}
