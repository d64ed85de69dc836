package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is returned when a workflow definition is rejected at registration.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	// ErrWorkflowNotFound is returned for an unknown workflow id.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrWorkflowPaused is returned when a paused workflow is asked to run.
	ErrWorkflowPaused = errors.New("workflow is paused")
	// ErrCooldownActive is returned when a workflow ran more recently than its cooldown allows.
	ErrCooldownActive = errors.New("workflow cooldown active")
	// ErrConcurrencyLimit is returned when the active execution set is full.
	ErrConcurrencyLimit = errors.New("max concurrent workflows reached")
	// ErrEngineNotRunning is returned when work arrives before Initialize or after Shutdown.
	ErrEngineNotRunning = errors.New("workflow engine is not running")
	// ErrMaxTriggerDepth is returned when nested trigger-workflow actions go too deep.
	ErrMaxTriggerDepth = errors.New("max nested trigger depth exceeded")
	// ErrShutdownTimeout is returned when in-flight executions outlive the shutdown deadline.
	ErrShutdownTimeout = errors.New("shutdown timed out waiting for executions")
	// ErrUnknownOperation is returned for an unsupported built-in operation.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrUnknownOperator is returned for an unsupported condition operator.
	ErrUnknownOperator = errors.New("unknown condition operator")
	// ErrNoDispatcher is returned when an external action runs without a dispatcher.
	ErrNoDispatcher = errors.New("no action dispatcher configured")
	// ErrNoMetricFetcher is returned when a condition needs a metric and no fetcher is configured.
	ErrNoMetricFetcher = errors.New("no metric fetcher configured")
	// ErrNoAlertSink is returned by send-alert when no sink is configured.
	ErrNoAlertSink = errors.New("no alert sink configured")
)

// ActionError describes a failed action within a workflow run.
type ActionError struct {
	WorkflowID string
	Index      int
	Target     string
	Operation  string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("workflow %s: action %d (%s.%s) failed: %v", e.WorkflowID, e.Index, e.Target, e.Operation, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func invalidDefinition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
