package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IsRunning reports whether the engine accepts triggers.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Initialize seeds the default workflows, starts the retention sweep and
// the upstream event sources, and marks the engine running.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return nil
	}

	if e.cfg.SeedDefaults {
		for _, seed := range DefaultWorkflows() {
			if _, exists := e.registry.get(seed.ID); exists {
				continue
			}
			if _, err := e.RegisterWorkflow(seed.ID, seed.Definition); err != nil {
				return fmt.Errorf("failed to seed workflow %s: %w", seed.ID, err)
			}
		}
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(e.cfg.SweepSchedule, func() { e.PurgeExpired() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", e.cfg.SweepSchedule, err)
	}

	e.abandoned.Store(false)
	e.running.Store(true)
	for i, src := range e.sources {
		if err := src.Start(ctx, e.HandleTrigger); err != nil {
			e.running.Store(false)
			for _, started := range e.sources[:i] {
				_ = started.Close()
			}
			return fmt.Errorf("failed to start event source: %w", err)
		}
	}
	sweeper.Start()
	e.cron = sweeper

	stats := e.GetStats()
	e.logger.Info("workflow engine ready",
		"workflows", stats.TotalWorkflows,
		"triggers", stats.Triggers,
		"sources", len(e.sources),
		"max_concurrent", e.cfg.MaxConcurrentWorkflows)
	e.publish(&Event{Type: EventEngineReady})
	return nil
}

// Shutdown stops accepting triggers and waits for in-flight executions to
// drain, up to the configured shutdown timeout or ctx, whichever is sooner.
// Executions still running at the deadline are abandoned and never reach
// the ledger.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	e.mu.Lock()
	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
	for _, src := range e.sources {
		if err := src.Close(); err != nil {
			e.logger.Error("failed to close event source", "error", err)
		}
	}
	e.mu.Unlock()

	e.logger.Info("workflow engine shutting down", "active_executions", e.active.len())

	deadline := time.NewTimer(e.cfg.ShutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.DrainPollInterval)
	defer ticker.Stop()

	for {
		if e.active.len() == 0 {
			e.logger.Info("workflow engine stopped")
			e.publish(&Event{Type: EventEngineShutdown})
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return e.abandon(fmt.Errorf("%w after %s", ErrShutdownTimeout, e.cfg.ShutdownTimeout))
		case <-ctx.Done():
			return e.abandon(fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err()))
		}
	}
}

func (e *Engine) abandon(err error) error {
	e.abandoned.Store(true)
	n := e.active.len()
	e.logger.Warn("shutdown deadline reached, abandoning in-flight executions", "abandoned", n)
	e.publish(&Event{Type: EventEngineShutdown, Error: err.Error(), Data: map[string]any{"abandoned": n}})
	return err
}
