package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// WorkflowService owns workflow CRUD and keeps the scheduler in sync with
// schedule and activation changes.
type WorkflowService struct {
	repo      domain.WorkflowRepository
	scheduler *WorkflowScheduler
}

// NewWorkflowService wires the workflow service. The scheduler may be nil in
// tests.
func NewWorkflowService(repo domain.WorkflowRepository, scheduler *WorkflowScheduler) *WorkflowService {
	return &WorkflowService{repo: repo, scheduler: scheduler}
}

// Create validates the definition graph and stores the workflow. Scheduled
// workflows are registered immediately when active.
func (s *WorkflowService) Create(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	if w.Name == "" {
		return domain.Workflow{}, fmt.Errorf("op=workflow.create: name required: %w", domain.ErrInvalidArgument)
	}
	if w.ExecutionMode != domain.ModeSequential && w.ExecutionMode != domain.ModeParallel {
		w.ExecutionMode = domain.ModeSequential
	}
	var def graphDef
	if err := json.Unmarshal(w.Definition, &def); err != nil {
		return domain.Workflow{}, fmt.Errorf("op=workflow.create: definition decode: %w", domain.ErrInvalidArgument)
	}
	if _, err := buildGraph(def); err != nil {
		return domain.Workflow{}, err
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	id, err := s.repo.Create(ctx, w)
	if err != nil {
		return domain.Workflow{}, err
	}
	w.ID = id
	if s.scheduler != nil && w.IsActive && w.Schedule != "" {
		if err := s.scheduler.Schedule(w); err != nil {
			return domain.Workflow{}, err
		}
	}
	return w, nil
}

// Get returns one workflow, enforcing ownership.
func (s *WorkflowService) Get(ctx context.Context, userID, id string) (domain.Workflow, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Workflow{}, err
	}
	if w.UserID != userID {
		return domain.Workflow{}, fmt.Errorf("op=workflow.get: %w", domain.ErrNotFound)
	}
	return w, nil
}

// List returns the user's workflows.
func (s *WorkflowService) List(ctx context.Context, userID string) ([]domain.Workflow, error) {
	return s.repo.ListByUser(ctx, userID)
}

// SetActive flips activation and registers or cancels the schedule entry.
func (s *WorkflowService) SetActive(ctx context.Context, userID, id string, active bool) error {
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if s.scheduler == nil || w.Schedule == "" {
		return nil
	}
	if active {
		w.IsActive = true
		return s.scheduler.Schedule(w)
	}
	s.scheduler.Cancel(id)
	return nil
}

// Delete removes the workflow and cancels any schedule entry.
func (s *WorkflowService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(id)
	}
	return nil
}
