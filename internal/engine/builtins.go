package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"creator-automation/backend/pkg/models"
)

// BuiltinTarget is the action target handled by the engine itself.
const BuiltinTarget = "workflow-engine"

// Built-in operations.
const (
	OpWait            = "wait"
	OpLog             = "log"
	OpTriggerWorkflow = "trigger-workflow"
	OpSendAlert       = "send-alert"
)

func isBuiltin(op string) bool {
	switch op {
	case OpWait, OpLog, OpTriggerWorkflow, OpSendAlert:
		return true
	}
	return false
}

type depthKey struct{}

func triggerDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func (e *Engine) runBuiltin(ctx context.Context, wf *models.Workflow, action models.Action, data map[string]any) (any, error) {
	params := action.Params
	switch action.Operation {
	case OpWait:
		ms, err := toFloat(params["duration"])
		if err != nil {
			return nil, fmt.Errorf("wait: duration: %w", err)
		}
		d := time.Duration(ms * float64(time.Millisecond))
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return map[string]any{"waited_ms": ms}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	case OpLog:
		msg := stringParam(params, "message")
		args := []any{"workflow_id", wf.ID}
		switch stringParam(params, "level") {
		case "debug":
			e.logger.Debug(msg, args...)
		case "warn", "warning":
			e.logger.Warn(msg, args...)
		case "error":
			e.logger.Error(msg, args...)
		default:
			e.logger.Info(msg, args...)
		}
		return nil, nil

	case OpTriggerWorkflow:
		target := stringParam(params, "workflowId")
		if target == "" {
			return nil, fmt.Errorf("trigger-workflow: workflowId is required")
		}
		depth := triggerDepth(ctx)
		if depth >= e.cfg.MaxTriggerDepth {
			return nil, fmt.Errorf("trigger-workflow %s at depth %d: %w", target, depth, ErrMaxTriggerDepth)
		}
		eventData, _ := params["eventData"].(map[string]any)
		if eventData == nil {
			eventData = maps.Clone(data)
		}
		record, err := e.ExecuteWorkflow(context.WithValue(ctx, depthKey{}, depth+1), target, eventData)
		if record == nil {
			return nil, err
		}
		return map[string]any{"execution_id": record.ExecutionID, "status": string(record.Status)}, err

	case OpSendAlert:
		if e.alerts == nil {
			return nil, ErrNoAlertSink
		}
		severity := models.AlertSeverity(stringParam(params, "severity"))
		if severity == "" {
			severity = models.SeverityWarning
		}
		meta := map[string]any{"workflow_name": wf.Name}
		if extra, ok := params["metadata"].(map[string]any); ok {
			maps.Copy(meta, extra)
		}
		if len(data) > 0 {
			meta["event"] = maps.Clone(data)
		}
		e.alerts.RaiseAlert(ctx, models.Alert{
			Title:    stringParam(params, "title"),
			Message:  stringParam(params, "message"),
			Severity: severity,
			Source:   wf.ID,
			Metadata: meta,
		})
		return map[string]any{"alerted": true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, action.Operation)
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
