package usecase_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

func schedulerFixture(t *testing.T) (*usecase.WorkflowScheduler, *memWorkflowRepo) {
	t.Helper()
	workflows := newMemWorkflowRepo()
	engine := usecase.NewWorkflowEngine(workflows, newMemExecutionRepo())
	s := usecase.NewWorkflowScheduler(engine)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, workflows
}

func TestSchedule_RejectsEmptyAndBadExpressions(t *testing.T) {
	s, _ := schedulerFixture(t)

	err := s.Schedule(domain.Workflow{ID: "wf1"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = s.Schedule(domain.Workflow{ID: "wf1", Schedule: "not a cron line"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSchedule_ReplacesPreviousEntry(t *testing.T) {
	s, _ := schedulerFixture(t)

	require.NoError(t, s.Schedule(domain.Workflow{ID: "wf1", Schedule: "0 9 * * *"}))
	// Rescheduling the same workflow replaces rather than duplicates.
	require.NoError(t, s.Schedule(domain.Workflow{ID: "wf1", Schedule: "30 9 * * *"}))

	s.Cancel("wf1")
	// Cancelling twice is a no-op.
	s.Cancel("wf1")
}

func TestResync_SkipsInactiveAndUnscheduled(t *testing.T) {
	s, _ := schedulerFixture(t)

	s.Resync(context.Background(), []domain.Workflow{
		{ID: "wf1", Schedule: "0 9 * * *", IsActive: true},
		{ID: "wf2", Schedule: "", IsActive: true},
		{ID: "wf3", Schedule: "0 9 * * *", IsActive: false},
		{ID: "wf4", Schedule: "garbage", IsActive: true},
	})
	// Only wf1 got an entry; the others were skipped without failing the pass.
	s.Cancel("wf1")
}

func TestWorkflowServiceCreate_ValidatesDefinition(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := usecase.NewWorkflowService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Workflow{
		UserID:     "u1",
		Definition: json.RawMessage(`{"nodes":[{"id":"n1"}]}`),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument) // no name

	_, err = svc.Create(ctx, domain.Workflow{
		UserID:     "u1",
		Name:       "w",
		Definition: json.RawMessage(`{"nodes":[]}`),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument) // empty graph

	w, err := svc.Create(ctx, domain.Workflow{
		UserID:        "u1",
		Name:          "w",
		ExecutionMode: "bogus",
		Definition:    json.RawMessage(`{"nodes":[{"id":"n1","type":"agent","agent":"a"}]}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	// Unknown modes fall back to sequential.
	assert.Equal(t, domain.ModeSequential, w.ExecutionMode)
}

func TestWorkflowServiceGet_EnforcesOwnership(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := usecase.NewWorkflowService(repo, nil)
	ctx := context.Background()

	w, err := svc.Create(ctx, domain.Workflow{
		UserID:     "u1",
		Name:       "w",
		Definition: json.RawMessage(`{"nodes":[{"id":"n1"}]}`),
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "u1", w.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "u2", w.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflowServiceSetActive_SyncsScheduler(t *testing.T) {
	repo := newMemWorkflowRepo()
	engine := usecase.NewWorkflowEngine(repo, newMemExecutionRepo())
	scheduler := usecase.NewWorkflowScheduler(engine)
	t.Cleanup(func() { scheduler.Stop(context.Background()) })
	svc := usecase.NewWorkflowService(repo, scheduler)
	ctx := context.Background()

	w, err := svc.Create(ctx, domain.Workflow{
		UserID:     "u1",
		Name:       "w",
		Schedule:   "0 9 * * *",
		IsActive:   true,
		Definition: json.RawMessage(`{"nodes":[{"id":"n1"}]}`),
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, "u1", w.ID, false))
	got, err := svc.Get(ctx, "u1", w.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, svc.SetActive(ctx, "u1", w.ID, true))
	require.ErrorIs(t, svc.SetActive(ctx, "u2", w.ID, false), domain.ErrNotFound)
}

func TestWorkflowServiceDelete_CancelsSchedule(t *testing.T) {
	repo := newMemWorkflowRepo()
	engine := usecase.NewWorkflowEngine(repo, newMemExecutionRepo())
	scheduler := usecase.NewWorkflowScheduler(engine)
	t.Cleanup(func() { scheduler.Stop(context.Background()) })
	svc := usecase.NewWorkflowService(repo, scheduler)
	ctx := context.Background()

	w, err := svc.Create(ctx, domain.Workflow{
		UserID:     "u1",
		Name:       "w",
		Schedule:   "0 9 * * *",
		IsActive:   true,
		Definition: json.RawMessage(`{"nodes":[{"id":"n1"}]}`),
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "u2", w.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", w.ID))
	_, err = svc.Get(ctx, "u1", w.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
