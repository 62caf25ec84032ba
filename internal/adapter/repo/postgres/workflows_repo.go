package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// WorkflowRepo persists workflow definitions using a minimal pgx pool.
type WorkflowRepo struct{ Pool PgxPool }

// NewWorkflowRepo constructs a WorkflowRepo with the given pool.
func NewWorkflowRepo(p PgxPool) *WorkflowRepo { return &WorkflowRepo{Pool: p} }

const workflowCols = `id, user_id, name, type, definition, execution_mode, COALESCE(schedule,''), is_active, created_at, updated_at`

func scanWorkflow(row pgx.Row) (domain.Workflow, error) {
	var w domain.Workflow
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Type, &w.Definition, &w.ExecutionMode, &w.Schedule, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// Create inserts a workflow and returns its id.
func (r *WorkflowRepo) Create(ctx domain.Context, w domain.Workflow) (string, error) {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.Create")
	defer span.End()
	id := w.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO workflows (id, user_id, name, type, definition, execution_mode, schedule, is_active, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, w.UserID, w.Name, w.Type, w.Definition, w.ExecutionMode, w.Schedule, w.IsActive, now, now)
	if err != nil {
		return "", fmt.Errorf("op=workflow.create: %w", err)
	}
	return id, nil
}

// Get loads a workflow by id.
func (r *WorkflowRepo) Get(ctx domain.Context, id string) (domain.Workflow, error) {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.Get")
	defer span.End()
	q := `SELECT ` + workflowCols + ` FROM workflows WHERE id=$1`
	w, err := scanWorkflow(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Workflow{}, fmt.Errorf("op=workflow.get: %w", domain.ErrNotFound)
		}
		return domain.Workflow{}, fmt.Errorf("op=workflow.get: %w", err)
	}
	return w, nil
}

// ListByUser returns a user's workflows, newest first.
func (r *WorkflowRepo) ListByUser(ctx domain.Context, userID string) ([]domain.Workflow, error) {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.ListByUser")
	defer span.End()
	q := `SELECT ` + workflowCols + ` FROM workflows WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=workflow.list_by_user: %w", err)
	}
	defer rows.Close()
	var out []domain.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("op=workflow.scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListScheduled returns every active workflow carrying a cron schedule. Used
// by the scheduler resync at startup.
func (r *WorkflowRepo) ListScheduled(ctx domain.Context) ([]domain.Workflow, error) {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.ListScheduled")
	defer span.End()
	q := `SELECT ` + workflowCols + ` FROM workflows WHERE is_active=true AND COALESCE(schedule,'') <> ''`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=workflow.list_scheduled: %w", err)
	}
	defer rows.Close()
	var out []domain.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("op=workflow.scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetActive flips the activation flag.
func (r *WorkflowRepo) SetActive(ctx domain.Context, id string, active bool) error {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.SetActive")
	defer span.End()
	q := `UPDATE workflows SET is_active=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=workflow.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=workflow.set_active: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a workflow scoped by its owner.
func (r *WorkflowRepo) Delete(ctx domain.Context, userID, id string) error {
	tracer := otel.Tracer("repo.workflows")
	ctx, span := tracer.Start(ctx, "workflows.Delete")
	defer span.End()
	q := `DELETE FROM workflows WHERE id=$1 AND user_id=$2`
	tag, err := r.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("op=workflow.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=workflow.delete: %w", domain.ErrNotFound)
	}
	return nil
}
