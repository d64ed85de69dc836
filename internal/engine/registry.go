package engine

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"creator-automation/backend/pkg/models"
)

// registry owns workflow definitions and the trigger index.
type registry struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	triggers  map[string]map[string]struct{}
	seq       int64
}

func newRegistry() *registry {
	return &registry{
		workflows: make(map[string]*models.Workflow),
		triggers:  make(map[string]map[string]struct{}),
	}
}

// register inserts or replaces a workflow. Statistics of an existing
// workflow survive re-registration.
func (r *registry) register(id string, def models.WorkflowDefinition, now time.Time) (*models.Workflow, error) {
	if err := validateDefinition(id, def); err != nil {
		return nil, err
	}
	if def.Priority == "" {
		def.Priority = models.PriorityMedium
	}
	if def.Status == "" {
		def.Status = models.WorkflowActive
	}

	wf := &models.Workflow{
		ID:          id,
		Name:        def.Name,
		Description: def.Description,
		Triggers:    dedupe(def.Triggers),
		Conditions:  slices.Clone(def.Conditions),
		Actions:     slices.Clone(def.Actions),
		Cooldown:    def.Cooldown,
		Priority:    def.Priority,
		Status:      def.Status,
	}
	if wf.Name == "" {
		wf.Name = id
	}
	wf = wf.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.workflows[id]; ok {
		wf.LastExecuted = prev.LastExecuted
		wf.ExecutionCount = prev.ExecutionCount
		wf.SuccessCount = prev.SuccessCount
		wf.FailureCount = prev.FailureCount
		wf.AverageExecutionTimeMs = prev.AverageExecutionTimeMs
		wf.RegisteredAt = prev.RegisteredAt
		wf.Sequence = prev.Sequence
		for _, t := range prev.Triggers {
			if !slices.Contains(wf.Triggers, t) {
				r.unindex(t, id)
			}
		}
	} else {
		r.seq++
		wf.Sequence = r.seq
		wf.RegisteredAt = now
	}

	r.workflows[id] = wf
	for _, t := range wf.Triggers {
		set, ok := r.triggers[t]
		if !ok {
			set = make(map[string]struct{})
			r.triggers[t] = set
		}
		set[id] = struct{}{}
	}
	return wf.Clone(), nil
}

func (r *registry) unindex(trigger, id string) {
	set := r.triggers[trigger]
	delete(set, id)
	if len(set) == 0 {
		delete(r.triggers, trigger)
	}
}

func (r *registry) get(id string) (*models.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, false
	}
	return wf.Clone(), true
}

// list returns copies in registration order.
func (r *registry) list() []*models.Workflow {
	r.mu.RLock()
	out := make([]*models.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

func (r *registry) setStatus(id string, status models.WorkflowStatus) (models.WorkflowStatus, bool) {
	if !status.Valid() {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return "", false
	}
	prev := wf.Status
	wf.Status = status
	return prev, true
}

// candidates returns copies of the workflows interested in trigger, in
// registration order.
func (r *registry) candidates(trigger string) []*models.Workflow {
	r.mu.RLock()
	set := r.triggers[trigger]
	out := make([]*models.Workflow, 0, len(set))
	for id := range set {
		if wf, ok := r.workflows[id]; ok {
			out = append(out, wf.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (r *registry) triggerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.triggers)
}

func (r *registry) counts() (total, active, paused int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wf := range r.workflows {
		total++
		if wf.Status == models.WorkflowPaused {
			paused++
		} else {
			active++
		}
	}
	return total, active, paused
}

// beginRun re-checks status and cooldown and stamps LastExecuted under one
// lock so two concurrent triggers cannot both pass the cooldown.
func (r *registry) beginRun(id string, now time.Time) (*models.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	if err := admissible(wf, now); err != nil {
		return nil, err
	}
	t := now
	wf.LastExecuted = &t
	return wf.Clone(), nil
}

// recordResult folds one finished run into the workflow statistics.
func (r *registry) recordResult(id string, success bool, elapsedMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return
	}
	wf.ExecutionCount++
	if success {
		wf.SuccessCount++
	} else {
		wf.FailureCount++
	}
	n := float64(wf.ExecutionCount)
	wf.AverageExecutionTimeMs = (wf.AverageExecutionTimeMs*(n-1) + elapsedMs) / n
}

func validateDefinition(id string, def models.WorkflowDefinition) error {
	if strings.TrimSpace(id) == "" {
		return invalidDefinition("id is required")
	}
	if len(def.Triggers) == 0 {
		return invalidDefinition("workflow %s: at least one trigger is required", id)
	}
	for _, t := range def.Triggers {
		if strings.TrimSpace(t) == "" {
			return invalidDefinition("workflow %s: empty trigger name", id)
		}
	}
	if len(def.Actions) == 0 {
		return invalidDefinition("workflow %s: at least one action is required", id)
	}
	for i, a := range def.Actions {
		if a.Target == "" || a.Operation == "" {
			return invalidDefinition("workflow %s: action %d needs target and operation", id, i)
		}
		if a.Target == BuiltinTarget && !isBuiltin(a.Operation) {
			return invalidDefinition("workflow %s: action %d: unknown built-in operation %q", id, i, a.Operation)
		}
	}
	for i, c := range def.Conditions {
		if c.Type == "" {
			return invalidDefinition("workflow %s: condition %d has no type", id, i)
		}
		if !knownOperator(c.Operator) {
			return invalidDefinition("workflow %s: condition %d: unknown operator %q", id, i, c.Operator)
		}
	}
	if def.Priority != "" && !def.Priority.Valid() {
		return invalidDefinition("workflow %s: unknown priority %q", id, def.Priority)
	}
	if def.Status != "" && !def.Status.Valid() {
		return invalidDefinition("workflow %s: unknown status %q", id, def.Status)
	}
	if def.Cooldown < 0 {
		return invalidDefinition("workflow %s: negative cooldown", id)
	}
	return nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// RegisterWorkflow validates and stores a workflow definition and indexes
// its triggers. Re-registering an id replaces the definition but keeps the
// accumulated statistics.
func (e *Engine) RegisterWorkflow(id string, def models.WorkflowDefinition) (*models.Workflow, error) {
	wf, err := e.registry.register(id, def, e.now())
	if err != nil {
		e.logger.Warn("workflow registration rejected", "workflow_id", id, "error", err)
		return nil, err
	}
	e.logger.Info("workflow registered", "workflow_id", id, "triggers", wf.Triggers, "priority", wf.Priority)
	e.publish(&Event{Type: EventWorkflowRegistered, WorkflowID: id})
	return wf, nil
}

// GetWorkflow returns a copy of the workflow with the given id.
func (e *Engine) GetWorkflow(id string) (*models.Workflow, bool) {
	return e.registry.get(id)
}

// ListWorkflows returns copies of all workflows in registration order.
func (e *Engine) ListWorkflows() []*models.Workflow {
	return e.registry.list()
}

// SetWorkflowStatus pauses or resumes a workflow. It reports false for an
// unknown id or status.
func (e *Engine) SetWorkflowStatus(id string, status models.WorkflowStatus) bool {
	prev, ok := e.registry.setStatus(id, status)
	if !ok {
		e.logger.Warn("workflow status not changed", "workflow_id", id, "status", status)
		return false
	}
	e.logger.Info("workflow status changed", "workflow_id", id, "from", prev, "to", status)
	e.publish(&Event{
		Type:       EventWorkflowStatusChanged,
		WorkflowID: id,
		Data:       map[string]any{"from": string(prev), "to": string(status)},
	})
	return true
}
