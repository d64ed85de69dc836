package engine

import (
	"context"
	"errors"
	"fmt"

	"creator-automation/backend/pkg/models"
)

// HandleTrigger routes a trigger to every interested workflow whose
// conditions hold and which passes admission. Admitted workflows run one
// after another in priority order. Failed runs are returned as records; the
// errors of critical action failures are joined into err.
func (e *Engine) HandleTrigger(ctx context.Context, trigger string, data map[string]any) (records []*models.ExecutionRecord, err error) {
	if !e.running.Load() {
		e.logger.Debug("trigger dropped, engine not running", "trigger", trigger)
		return nil, ErrEngineNotRunning
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("trigger handling panicked", "trigger", trigger, "panic", r)
			e.publish(&Event{Type: EventTriggerError, Trigger: trigger, Error: fmt.Sprint(r)})
			err = fmt.Errorf("trigger %s: panic: %v", trigger, r)
		}
	}()

	candidates := e.registry.candidates(trigger)
	if len(candidates) == 0 {
		e.logger.Debug("no workflows for trigger", "trigger", trigger)
		return nil, nil
	}

	now := e.now()
	admitted := make([]*models.Workflow, 0, len(candidates))
	for _, wf := range candidates {
		if !e.evaluator.evaluate(ctx, wf, data) {
			continue
		}
		if err := admissible(wf, now); err != nil {
			e.logger.Debug("workflow not admitted", "workflow_id", wf.ID, "trigger", trigger, "reason", err)
			continue
		}
		admitted = append(admitted, wf)
	}
	sortByPriority(admitted)

	var errs []error
	for _, candidate := range admitted {
		if !e.running.Load() {
			e.logger.Warn("engine stopping, remaining workflows not started", "trigger", trigger)
			break
		}
		wf, err := e.admit(candidate.ID)
		if err != nil {
			e.logger.Debug("workflow not admitted", "workflow_id", candidate.ID, "trigger", trigger, "reason", err)
			continue
		}
		record, err := e.execute(ctx, wf, trigger, data)
		records = append(records, record)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(records) > 0 {
		e.metrics.triggerProcessed(trigger)
	}
	return records, errors.Join(errs...)
}

// ExecuteWorkflow runs one workflow directly, skipping condition
// evaluation but applying admission. Admission failures are returned as
// errors; a critical action failure returns the failed record and the error.
func (e *Engine) ExecuteWorkflow(ctx context.Context, id string, data map[string]any) (*models.ExecutionRecord, error) {
	if !e.running.Load() {
		return nil, ErrEngineNotRunning
	}
	snapshot, ok := e.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err := admissible(snapshot, e.now()); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, err)
	}
	wf, err := e.admit(id)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, err)
	}
	return e.execute(ctx, wf, "", data)
}
