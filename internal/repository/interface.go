package repository

import (
	"context"
	"errors"
	"time"

	"creator-automation/backend/pkg/models"
)

// ErrNotFound is returned when a stored row does not exist.
var ErrNotFound = errors.New("not found")

// StoredDefinition is a persisted workflow definition.
type StoredDefinition struct {
	ID         string
	Definition models.WorkflowDefinition
	UpdatedAt  time.Time
}

// DefinitionStore is an interface for storing workflow definitions.
type DefinitionStore interface {
	// SaveDefinition inserts or replaces a definition.
	SaveDefinition(ctx context.Context, id string, def models.WorkflowDefinition) error
	// GetDefinition retrieves a definition by its ID.
	GetDefinition(ctx context.Context, id string) (*StoredDefinition, error)
	// ListDefinitions returns every stored definition ordered by ID.
	ListDefinitions(ctx context.Context) ([]StoredDefinition, error)
}

// ExecutionStore is an interface for archiving execution records.
type ExecutionStore interface {
	// SaveExecution persists a finished execution record.
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error
	// ListExecutions returns the newest records first. An empty workflowID matches all workflows.
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error)
	// DeleteExecutionsBefore removes records that started before cutoff.
	DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
