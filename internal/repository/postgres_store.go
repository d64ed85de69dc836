package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"creator-automation/backend/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_definitions (
	id         TEXT PRIMARY KEY,
	definition JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS workflow_executions (
	execution_id TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL,
	trigger_name TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ NOT NULL,
	duration_ms  DOUBLE PRECISION NOT NULL,
	actions      JSONB NOT NULL,
	event_data   JSONB,
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS workflow_executions_start_time_idx ON workflow_executions (start_time DESC);
CREATE INDEX IF NOT EXISTS workflow_executions_workflow_idx ON workflow_executions (workflow_id, start_time DESC);
`

// PostgresStore is a PostgreSQL implementation of DefinitionStore and ExecutionStore.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveDefinition inserts or replaces a definition.
func (s *PostgresStore) SaveDefinition(ctx context.Context, id string, def models.WorkflowDefinition) error {
	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition %s: %w", id, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_definitions (id, definition, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()`,
		id, doc)
	if err != nil {
		return fmt.Errorf("failed to save definition %s: %w", id, err)
	}
	return nil
}

// GetDefinition retrieves a definition by its ID.
func (s *PostgresStore) GetDefinition(ctx context.Context, id string) (*StoredDefinition, error) {
	row := s.db.QueryRow(ctx, "SELECT id, definition, updated_at FROM workflow_definitions WHERE id = $1", id)
	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("definition %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// ListDefinitions returns every stored definition ordered by ID.
func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]StoredDefinition, error) {
	rows, err := s.db.Query(ctx, "SELECT id, definition, updated_at FROM workflow_definitions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []StoredDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

func scanDefinition(row pgx.Row) (*StoredDefinition, error) {
	var (
		def StoredDefinition
		doc []byte
	)
	if err := row.Scan(&def.ID, &doc, &def.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &def.Definition); err != nil {
		return nil, fmt.Errorf("failed to decode definition %s: %w", def.ID, err)
	}
	return &def, nil
}

// SaveExecution persists a finished execution record. Saving the same
// execution twice keeps the first copy.
func (s *PostgresStore) SaveExecution(ctx context.Context, r *models.ExecutionRecord) error {
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	var eventData []byte
	if r.EventData != nil {
		if eventData, err = json.Marshal(r.EventData); err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_executions
			(execution_id, workflow_id, trigger_name, status, start_time, end_time, duration_ms, actions, event_data, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id) DO NOTHING`,
		r.ExecutionID, r.WorkflowID, r.Trigger, string(r.Status), r.StartTime, r.EndTime, r.DurationMs,
		actions, eventData, r.Error)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", r.ExecutionID, err)
	}
	return nil
}

// ListExecutions returns up to limit records, newest first.
func (s *PostgresStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT execution_id, workflow_id, trigger_name, status, start_time, end_time, duration_ms, actions, event_data, error
		FROM workflow_executions
		WHERE $1 = '' OR workflow_id = $1
		ORDER BY start_time DESC
		LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord
	for rows.Next() {
		var (
			r                  models.ExecutionRecord
			status             string
			actions, eventData []byte
		)
		if err := rows.Scan(&r.ExecutionID, &r.WorkflowID, &r.Trigger, &status, &r.StartTime, &r.EndTime,
			&r.DurationMs, &actions, &eventData, &r.Error); err != nil {
			return nil, err
		}
		r.Status = models.ExecutionStatus(status)
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions of %s: %w", r.ExecutionID, err)
		}
		if len(eventData) > 0 {
			if err := json.Unmarshal(eventData, &r.EventData); err != nil {
				return nil, fmt.Errorf("failed to decode event data of %s: %w", r.ExecutionID, err)
			}
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// DeleteExecutionsBefore removes records that started before cutoff.
func (s *PostgresStore) DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflow_executions WHERE start_time < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}
