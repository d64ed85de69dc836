package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"creator-automation/backend/pkg/models"
)

// execute runs wf's actions in order. The caller must hold a slot from admit.
func (e *Engine) execute(ctx context.Context, wf *models.Workflow, trigger string, data map[string]any) (*models.ExecutionRecord, error) {
	record := &models.ExecutionRecord{
		ExecutionID: uuid.NewString(),
		WorkflowID:  wf.ID,
		Trigger:     trigger,
		StartTime:   e.now(),
		Status:      models.ExecutionRunning,
		Actions:     make([]models.ActionOutcome, 0, len(wf.Actions)),
		EventData:   maps.Clone(data),
	}
	e.active.add(models.ActiveExecution{
		ExecutionID: record.ExecutionID,
		WorkflowID:  wf.ID,
		StartTime:   record.StartTime,
		Status:      models.ExecutionRunning,
		EventData:   record.EventData,
	})

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.trigger", trigger),
		attribute.String("execution.id", record.ExecutionID),
	))
	defer span.End()

	e.logger.Info("workflow execution started", "workflow_id", wf.ID, "execution_id", record.ExecutionID, "trigger", trigger)
	e.publish(&Event{
		Type:        EventWorkflowStarted,
		WorkflowID:  wf.ID,
		ExecutionID: record.ExecutionID,
		Trigger:     trigger,
	})

	var runErr error
	for i, action := range wf.Actions {
		if runErr != nil {
			record.Actions = append(record.Actions, models.ActionOutcome{
				Index: i, Target: action.Target, Operation: action.Operation, Status: models.ActionSkipped,
			})
			continue
		}

		result, err := e.runAction(ctx, wf, i, action, data)
		if err != nil {
			record.Actions = append(record.Actions, models.ActionOutcome{
				Index: i, Target: action.Target, Operation: action.Operation,
				Status: models.ActionFailed, Error: err.Error(),
			})
			if action.Critical {
				runErr = &ActionError{WorkflowID: wf.ID, Index: i, Target: action.Target, Operation: action.Operation, Err: err}
				continue
			}
			e.logger.Warn("non-critical action failed", "workflow_id", wf.ID, "execution_id", record.ExecutionID,
				"index", i, "target", action.Target, "operation", action.Operation, "error", err)
			continue
		}
		record.Actions = append(record.Actions, models.ActionOutcome{
			Index: i, Target: action.Target, Operation: action.Operation,
			Status: models.ActionSucceeded, Result: result,
		})
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	e.finalize(wf, record, runErr)
	return record.Clone(), runErr
}

// finalize moves a run to its terminal state. The ledger append happens
// before the active set is cleared so a drained shutdown sees the record.
func (e *Engine) finalize(wf *models.Workflow, record *models.ExecutionRecord, runErr error) {
	record.EndTime = e.now()
	elapsed := float64(record.EndTime.Sub(record.StartTime)) / float64(time.Millisecond)
	record.DurationMs = elapsed

	success := runErr == nil
	if success {
		record.Status = models.ExecutionSuccess
	} else {
		record.Status = models.ExecutionFailed
		record.Error = runErr.Error()
	}

	e.registry.recordResult(wf.ID, success, elapsed)
	abandoned := e.abandoned.Load()
	if abandoned {
		e.logger.Warn("execution finished after shutdown deadline, not recorded",
			"workflow_id", wf.ID, "execution_id", record.ExecutionID)
	} else {
		e.ledger.append(record.Clone())
	}
	e.active.remove(record.ExecutionID)
	e.slots.Release(1)
	e.metrics.observe(wf.ID, record.Status, elapsed)

	ev := &Event{
		WorkflowID:  wf.ID,
		ExecutionID: record.ExecutionID,
		Trigger:     record.Trigger,
	}
	// Abandoned runs carry no record so listeners never persist what the
	// ledger dropped.
	if !abandoned {
		ev.Record = record.Clone()
	}
	if success {
		ev.Type = EventWorkflowCompleted
		e.logger.Info("workflow execution completed", "workflow_id", wf.ID, "execution_id", record.ExecutionID, "duration_ms", elapsed)
	} else {
		ev.Type = EventWorkflowFailed
		ev.Error = record.Error
		e.logger.Error("workflow execution failed", "workflow_id", wf.ID, "execution_id", record.ExecutionID, "error", runErr)
	}
	e.publish(ev)
}

func (e *Engine) runAction(ctx context.Context, wf *models.Workflow, index int, action models.Action, data map[string]any) (result any, err error) {
	if e.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ActionTimeout)
		defer cancel()
	}
	ctx, span := e.tracer.Start(ctx, "workflow.action", trace.WithAttributes(
		attribute.Int("action.index", index),
		attribute.String("action.target", action.Target),
		attribute.String("action.operation", action.Operation),
		attribute.Bool("action.critical", action.Critical),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if action.Target == BuiltinTarget {
		return e.runBuiltin(ctx, wf, action, data)
	}
	if e.dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	result, err = e.dispatcher.Dispatch(ctx, action.Target, action.Operation, action.Params)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("action timed out after %s: %w", e.cfg.ActionTimeout, err)
	}
	return result, err
}
