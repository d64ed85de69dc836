package repository

import (
	"context"
	"fmt"
	"time"

	"creator-automation/backend/internal/engine"
	"creator-automation/backend/pkg/models"
)

// Logger is the logging contract for the repository helpers.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Subscriber is the part of the engine the Archiver listens on.
type Subscriber interface {
	Subscribe(t engine.EventType, l engine.Listener)
}

// Registrar accepts workflow registrations.
type Registrar interface {
	RegisterWorkflow(id string, def models.WorkflowDefinition) (*models.Workflow, error)
}

// Archiver copies finished execution records into an ExecutionStore.
type Archiver struct {
	store   ExecutionStore
	logger  Logger
	timeout time.Duration
}

// NewArchiver creates a new Archiver.
func NewArchiver(store ExecutionStore, logger Logger) *Archiver {
	return &Archiver{store: store, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the archiver to completed and failed notifications.
func (a *Archiver) Attach(sub Subscriber) {
	sub.Subscribe(engine.EventWorkflowCompleted, a.handle)
	sub.Subscribe(engine.EventWorkflowFailed, a.handle)
}

func (a *Archiver) handle(ev *engine.Event) {
	if ev.Record == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.store.SaveExecution(ctx, ev.Record); err != nil {
		a.logger.Error("failed to archive execution", "execution_id", ev.Record.ExecutionID, "error", err)
	}
}

// Prune deletes archived records older than retention.
func (a *Archiver) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := a.store.DeleteExecutionsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.Info("archived executions pruned", "removed", n)
	}
	return n, nil
}

// LoadDefinitions registers every stored definition and returns how many were loaded.
func LoadDefinitions(ctx context.Context, store DefinitionStore, r Registrar) (int, error) {
	defs, err := store.ListDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range defs {
		if _, err := r.RegisterWorkflow(d.ID, d.Definition); err != nil {
			return 0, fmt.Errorf("failed to register stored workflow %s: %w", d.ID, err)
		}
	}
	return len(defs), nil
}
