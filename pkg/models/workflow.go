package models

import (
	"maps"
	"slices"
	"time"
)

// Priority orders workflows that were admitted by the same trigger.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the numeric weight of the priority (critical=4 ... low=1).
// Unknown priorities rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// WorkflowStatus controls whether a workflow may be admitted.
type WorkflowStatus string

const (
	WorkflowActive WorkflowStatus = "active"
	WorkflowPaused WorkflowStatus = "paused"
)

// Valid reports whether s is a known status.
func (s WorkflowStatus) Valid() bool {
	return s == WorkflowActive || s == WorkflowPaused
}

// Condition is a declarative predicate. Type names an event field or an
// externally fetched metric.
type Condition struct {
	Type     string `json:"type" yaml:"type"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

// Action is one step of a workflow run.
type Action struct {
	Target    string         `json:"target" yaml:"target"`
	Operation string         `json:"operation" yaml:"operation"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Critical  bool           `json:"critical" yaml:"critical"`
}

// WorkflowDefinition is the registration payload for a workflow.
type WorkflowDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Triggers    []string       `json:"triggers" yaml:"triggers"`
	Conditions  []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions     []Action       `json:"actions" yaml:"actions"`
	Cooldown    Duration       `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
	Priority    Priority       `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status      WorkflowStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// Workflow is a registered rule together with its running statistics.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Triggers    []string       `json:"triggers"`
	Conditions  []Condition    `json:"conditions"`
	Actions     []Action       `json:"actions"`
	Cooldown    Duration       `json:"cooldown"`
	Priority    Priority       `json:"priority"`
	Status      WorkflowStatus `json:"status"`

	LastExecuted           *time.Time `json:"last_executed,omitempty"`
	ExecutionCount         int64      `json:"execution_count"`
	SuccessCount           int64      `json:"success_count"`
	FailureCount           int64      `json:"failure_count"`
	AverageExecutionTimeMs float64    `json:"average_execution_time_ms"`

	RegisteredAt time.Time `json:"registered_at"`
	// Sequence is the registration order, used to break priority ties.
	Sequence int64 `json:"-"`
}

// Definition returns the registration payload of w.
func (w *Workflow) Definition() WorkflowDefinition {
	c := w.Clone()
	return WorkflowDefinition{
		Name:        c.Name,
		Description: c.Description,
		Triggers:    c.Triggers,
		Conditions:  c.Conditions,
		Actions:     c.Actions,
		Cooldown:    c.Cooldown,
		Priority:    c.Priority,
		Status:      c.Status,
	}
}

// Clone returns a copy of w that shares no mutable state with it.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Triggers = slices.Clone(w.Triggers)
	c.Conditions = slices.Clone(w.Conditions)
	c.Actions = make([]Action, len(w.Actions))
	for i, a := range w.Actions {
		a.Params = maps.Clone(a.Params)
		c.Actions[i] = a
	}
	if w.LastExecuted != nil {
		t := *w.LastExecuted
		c.LastExecuted = &t
	}
	return &c
}
