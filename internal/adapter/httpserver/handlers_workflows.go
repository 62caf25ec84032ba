package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

type workflowDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Definition    json.RawMessage `json:"definition"`
	ExecutionMode string          `json:"execution_mode"`
	Schedule      string          `json:"schedule,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toWorkflowDTO(w domain.Workflow) workflowDTO {
	return workflowDTO{
		ID: w.ID, Name: w.Name, Type: w.Type, Definition: w.Definition,
		ExecutionMode: string(w.ExecutionMode), Schedule: w.Schedule,
		IsActive: w.IsActive, CreatedAt: w.CreatedAt,
	}
}

type executionDTO struct {
	ID              string                     `json:"id"`
	WorkflowID      string                     `json:"workflow_id"`
	Status          string                     `json:"status"`
	Progress        int                        `json:"progress"`
	CurrentNode     string                     `json:"current_node,omitempty"`
	Results         map[string]json.RawMessage `json:"results"`
	Errors          []string                   `json:"errors"`
	ExecutionTimeMS int64                      `json:"execution_time_ms"`
	StartedAt       time.Time                  `json:"started_at"`
	CompletedAt     *time.Time                 `json:"completed_at,omitempty"`
}

func toExecutionDTO(e domain.WorkflowExecution) executionDTO {
	errs := e.Errors
	if errs == nil {
		errs = []string{}
	}
	results := e.Results
	if results == nil {
		results = map[string]json.RawMessage{}
	}
	return executionDTO{
		ID: e.ID, WorkflowID: e.WorkflowID, Status: string(e.Status),
		Progress: e.Progress, CurrentNode: e.CurrentNode, Results: results,
		Errors: errs, ExecutionTimeMS: e.ExecutionTimeMS,
		StartedAt: e.StartedAt, CompletedAt: e.CompletedAt,
	}
}

type workflowRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Type          string          `json:"type" validate:"max=50"`
	Definition    json.RawMessage `json:"definition" validate:"required"`
	ExecutionMode string          `json:"execution_mode"`
	Schedule      string          `json:"schedule" validate:"max=100"`
	IsActive      bool            `json:"is_active"`
}

// CreateWorkflow handles POST /v1/workflows.
func (s *Server) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	wf, err := s.Workflows.Create(r.Context(), domain.Workflow{
		UserID:        UserIDFrom(r),
		Name:          SanitizeString(req.Name),
		Type:          req.Type,
		Definition:    req.Definition,
		ExecutionMode: domain.ExecutionMode(req.ExecutionMode),
		Schedule:      req.Schedule,
		IsActive:      req.IsActive,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowDTO(wf))
}

// ListWorkflows handles GET /v1/workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.Workflows.List(r.Context(), UserIDFrom(r))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]workflowDTO, 0, len(workflows))
	for _, wf := range workflows {
		out = append(out, toWorkflowDTO(wf))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

// GetWorkflow handles GET /v1/workflows/{id}.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.Workflows.Get(r.Context(), UserIDFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(wf))
}

type activateRequest struct {
	Active bool `json:"active"`
}

// SetWorkflowActive handles POST /v1/workflows/{id}/activate.
func (s *Server) SetWorkflowActive(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if err := s.Workflows.SetActive(r.Context(), UserIDFrom(r), chi.URLParam(r, "id"), req.Active); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": req.Active})
}

// DeleteWorkflow handles DELETE /v1/workflows/{id}.
func (s *Server) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.Workflows.Delete(r.Context(), UserIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeRequest struct {
	Input map[string]any `json:"input"`
}

// ExecuteWorkflow handles POST /v1/workflows/{id}/execute. The run happens
// inline and the final execution record is returned.
func (s *Server) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Ownership check before the engine touches the definition.
	if _, err := s.Workflows.Get(r.Context(), UserIDFrom(r), id); err != nil {
		writeError(w, r, err, nil)
		return
	}
	var req executeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
			return
		}
	}
	exec, err := s.Engine.Execute(r.Context(), id, req.Input)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionDTO(exec))
}

// ListExecutions handles GET /v1/workflows/{id}/executions?limit=.
func (s *Server) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Workflows.Get(r.Context(), UserIDFrom(r), id); err != nil {
		writeError(w, r, err, nil)
		return
	}
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 100)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	execs, err := s.Engine.ListExecutions(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]executionDTO, 0, len(execs))
	for _, e := range execs {
		out = append(out, toExecutionDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}

// GetExecution handles GET /v1/executions/{id}.
func (s *Server) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.Engine.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	// Execution ids are unguessable UUIDs; confirm ownership via the workflow.
	if _, err := s.Workflows.Get(r.Context(), UserIDFrom(r), exec.WorkflowID); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionDTO(exec))
}
