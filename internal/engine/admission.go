package engine

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"creator-automation/backend/pkg/models"
)

// admissible checks status and cooldown. The concurrency ceiling is
// enforced separately by the slot semaphore.
func admissible(wf *models.Workflow, now time.Time) error {
	if wf.Status != models.WorkflowActive {
		return ErrWorkflowPaused
	}
	if wf.LastExecuted != nil && now.Sub(*wf.LastExecuted) < wf.Cooldown.Std() {
		return ErrCooldownActive
	}
	return nil
}

// sortByPriority orders workflows by descending priority rank, breaking
// ties by registration order.
func sortByPriority(wfs []*models.Workflow) {
	slices.SortStableFunc(wfs, func(a, b *models.Workflow) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}

// activeSet tracks executions that are in flight.
type activeSet struct {
	mu   sync.RWMutex
	runs map[string]models.ActiveExecution
}

func newActiveSet() *activeSet {
	return &activeSet{runs: make(map[string]models.ActiveExecution)}
}

func (s *activeSet) add(run models.ActiveExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ExecutionID] = run
}

func (s *activeSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

func (s *activeSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *activeSet) list() []models.ActiveExecution {
	s.mu.RLock()
	out := make([]models.ActiveExecution, 0, len(s.runs))
	for _, run := range s.runs {
		run.EventData = maps.Clone(run.EventData)
		out = append(out, run)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.ActiveExecution) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

// admit reserves a concurrency slot and stamps the run start on the
// workflow. On success the caller owns the slot and must release it.
func (e *Engine) admit(id string) (*models.Workflow, error) {
	if !e.slots.TryAcquire(1) {
		return nil, ErrConcurrencyLimit
	}
	wf, err := e.registry.beginRun(id, e.now())
	if err != nil {
		e.slots.Release(1)
		return nil, err
	}
	return wf, nil
}
