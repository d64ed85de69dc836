package engine

import (
	"slices"
	"sync"
	"time"

	"creator-automation/backend/pkg/models"
)

// ledger keeps finalized execution records within the retention window.
type ledger struct {
	mu      sync.RWMutex
	records []*models.ExecutionRecord
}

func newLedger() *ledger {
	return &ledger{}
}

func (l *ledger) append(r *models.ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// history returns up to limit records, newest start time first. A limit of
// zero or less returns everything.
func (l *ledger) history(limit int) []*models.ExecutionRecord {
	l.mu.RLock()
	out := make([]*models.ExecutionRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	l.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *models.ExecutionRecord) int {
		return b.StartTime.Compare(a.StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// purgeBefore drops records that started before cutoff.
func (l *ledger) purgeBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	for _, r := range l.records {
		if !r.StartTime.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(l.records) - len(kept)
	clear(l.records[len(kept):])
	l.records = kept
	return removed
}

func (l *ledger) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// GetExecutionHistory returns the most recent execution records, newest first.
func (e *Engine) GetExecutionHistory(limit int) []*models.ExecutionRecord {
	return e.ledger.history(limit)
}

// PurgeExpired removes records older than the retention horizon and returns
// how many were dropped. It runs on the sweep schedule once initialized.
func (e *Engine) PurgeExpired() int {
	cutoff := e.now().Add(-e.cfg.Retention)
	removed := e.ledger.purgeBefore(cutoff)
	if removed > 0 {
		e.logger.Info("execution history purged", "removed", removed, "retained", e.ledger.len(), "cutoff", cutoff)
	}
	return removed
}
