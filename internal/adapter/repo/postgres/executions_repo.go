package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// ExecutionRepo persists workflow execution records using a minimal pgx pool.
// Results and errors are stored as JSONB documents.
type ExecutionRepo struct{ Pool PgxPool }

// NewExecutionRepo constructs an ExecutionRepo with the given pool.
func NewExecutionRepo(p PgxPool) *ExecutionRepo { return &ExecutionRepo{Pool: p} }

// Create inserts a new execution record and returns its id.
func (r *ExecutionRepo) Create(ctx domain.Context, e domain.WorkflowExecution) (string, error) {
	tracer := otel.Tracer("repo.executions")
	ctx, span := tracer.Start(ctx, "executions.Create")
	defer span.End()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	results, errs, err := marshalExecDocs(e)
	if err != nil {
		return "", err
	}
	q := `INSERT INTO workflow_executions (id, workflow_id, status, progress, current_node, results, errors, execution_time_ms, started_at, completed_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = r.Pool.Exec(ctx, q, id, e.WorkflowID, e.Status, e.Progress, e.CurrentNode, results, errs, e.ExecutionTimeMS, e.StartedAt, e.CompletedAt)
	if err != nil {
		return "", fmt.Errorf("op=execution.create: %w", err)
	}
	return id, nil
}

// Update persists the full mutable state of an execution.
func (r *ExecutionRepo) Update(ctx domain.Context, e domain.WorkflowExecution) error {
	tracer := otel.Tracer("repo.executions")
	ctx, span := tracer.Start(ctx, "executions.Update")
	defer span.End()
	results, errs, err := marshalExecDocs(e)
	if err != nil {
		return err
	}
	q := `UPDATE workflow_executions SET status=$2, progress=$3, current_node=$4, results=$5, errors=$6, execution_time_ms=$7, completed_at=$8 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, e.ID, e.Status, e.Progress, e.CurrentNode, results, errs, e.ExecutionTimeMS, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("op=execution.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=execution.update: %w", domain.ErrNotFound)
	}
	return nil
}

func marshalExecDocs(e domain.WorkflowExecution) ([]byte, []byte, error) {
	results, err := json.Marshal(e.Results)
	if err != nil {
		return nil, nil, fmt.Errorf("op=execution.marshal results: %w", err)
	}
	errSlice := e.Errors
	if errSlice == nil {
		errSlice = []string{}
	}
	errs, err := json.Marshal(errSlice)
	if err != nil {
		return nil, nil, fmt.Errorf("op=execution.marshal errors: %w", err)
	}
	return results, errs, nil
}

// Get loads an execution by id.
func (r *ExecutionRepo) Get(ctx domain.Context, id string) (domain.WorkflowExecution, error) {
	tracer := otel.Tracer("repo.executions")
	ctx, span := tracer.Start(ctx, "executions.Get")
	defer span.End()
	q := `SELECT id, workflow_id, status, progress, COALESCE(current_node,''), results, errors, execution_time_ms, started_at, completed_at
	      FROM workflow_executions WHERE id=$1`
	e, err := scanExecution(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WorkflowExecution{}, fmt.Errorf("op=execution.get: %w", domain.ErrNotFound)
		}
		return domain.WorkflowExecution{}, fmt.Errorf("op=execution.get: %w", err)
	}
	return e, nil
}

// ListByWorkflow returns the newest executions of a workflow.
func (r *ExecutionRepo) ListByWorkflow(ctx domain.Context, workflowID string, limit int) ([]domain.WorkflowExecution, error) {
	tracer := otel.Tracer("repo.executions")
	ctx, span := tracer.Start(ctx, "executions.ListByWorkflow")
	defer span.End()
	q := `SELECT id, workflow_id, status, progress, COALESCE(current_node,''), results, errors, execution_time_ms, started_at, completed_at
	      FROM workflow_executions WHERE workflow_id=$1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=execution.list: %w", err)
	}
	defer rows.Close()
	var out []domain.WorkflowExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("op=execution.scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (domain.WorkflowExecution, error) {
	var e domain.WorkflowExecution
	var results, errs []byte
	if err := row.Scan(&e.ID, &e.WorkflowID, &e.Status, &e.Progress, &e.CurrentNode, &results, &errs, &e.ExecutionTimeMS, &e.StartedAt, &e.CompletedAt); err != nil {
		return domain.WorkflowExecution{}, err
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &e.Results); err != nil {
			return domain.WorkflowExecution{}, fmt.Errorf("op=execution.decode results: %w", err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &e.Errors); err != nil {
			return domain.WorkflowExecution{}, fmt.Errorf("op=execution.decode errors: %w", err)
		}
	}
	return e, nil
}
