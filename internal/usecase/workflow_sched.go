package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// WorkflowScheduler triggers scheduled workflows on their cron expressions.
// At most one cron entry exists per workflow id; rescheduling replaces the
// previous entry.
type WorkflowScheduler struct {
	engine *WorkflowEngine
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewWorkflowScheduler builds a scheduler around the engine. Start must be
// called before entries fire.
func NewWorkflowScheduler(engine *WorkflowEngine) *WorkflowScheduler {
	return &WorkflowScheduler{
		engine:  engine,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing scheduled entries.
func (s *WorkflowScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *WorkflowScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Schedule registers (or replaces) the cron entry for a workflow. A workflow
// without a schedule expression is rejected.
func (s *WorkflowScheduler) Schedule(w domain.Workflow) error {
	if w.Schedule == "" {
		return fmt.Errorf("op=scheduler.schedule: workflow %s has no schedule: %w", w.ID, domain.ErrInvalidArgument)
	}
	id := w.ID
	entryID, err := s.cron.AddFunc(w.Schedule, func() {
		exec, err := s.engine.Execute(context.Background(), id, map[string]any{"trigger": "schedule"})
		if err != nil {
			slog.Error("scheduled workflow failed to start",
				slog.String("workflow_id", id), slog.Any("error", err))
			return
		}
		slog.Info("scheduled workflow executed",
			slog.String("workflow_id", id),
			slog.String("execution_id", exec.ID),
			slog.String("status", string(exec.Status)))
	})
	if err != nil {
		return fmt.Errorf("op=scheduler.schedule: bad cron expression %q: %w", w.Schedule, domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
	}
	s.entries[id] = entryID
	s.mu.Unlock()
	return nil
}

// Cancel removes the cron entry for a workflow. Cancelling an unscheduled
// workflow is a no-op.
func (s *WorkflowScheduler) Cancel(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[workflowID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
	}
}

// Resync loads every active scheduled workflow for all users known to the
// repository and registers it. Used at startup.
func (s *WorkflowScheduler) Resync(ctx context.Context, workflows []domain.Workflow) {
	for _, w := range workflows {
		if !w.IsActive || w.Schedule == "" {
			continue
		}
		if err := s.Schedule(w); err != nil {
			slog.Warn("skipping workflow with invalid schedule",
				slog.String("workflow_id", w.ID), slog.Any("error", err))
		}
	}
}
