package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// WorkflowState is the mutable record threaded through a workflow execution.
// Agent callbacks must return the (possibly mutated) state; returning nil
// retains the previous state.
type WorkflowState struct {
	WorkflowID  string
	ExecutionID string
	Context     map[string]any
	Results     map[string]any
	Errors      []string
}

// Clone returns a state copy sharing no mutable maps with the original.
// Parallel branches each receive a clone and write disjoint results keys.
func (st *WorkflowState) Clone() *WorkflowState {
	cp := &WorkflowState{
		WorkflowID:  st.WorkflowID,
		ExecutionID: st.ExecutionID,
		Context:     make(map[string]any, len(st.Context)),
		Results:     make(map[string]any, len(st.Results)),
		Errors:      append([]string(nil), st.Errors...),
	}
	for k, v := range st.Context {
		cp.Context[k] = v
	}
	for k, v := range st.Results {
		cp.Results[k] = v
	}
	return cp
}

// AgentFunc is a registered agent step. It receives the running state and
// returns the next state.
type AgentFunc func(ctx context.Context, st *WorkflowState) (*WorkflowState, error)

// Graph definition as stored in Workflow.Definition.

type nodeDef struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Agent    string `json:"agent,omitempty"`
	IsEntry  bool   `json:"is_entry,omitempty"`
	IsFinish bool   `json:"is_finish,omitempty"`
}

type edgeDef struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type graphDef struct {
	Nodes []nodeDef `json:"nodes"`
	Edges []edgeDef `json:"edges"`
}

// WorkflowEngine executes user-defined directed graphs of agent steps and
// records each execution. Node errors are accumulated; a single failing node
// never aborts the run.
type WorkflowEngine struct {
	workflows  domain.WorkflowRepository
	executions domain.ExecutionRepository

	mu     sync.RWMutex
	agents map[string]AgentFunc
}

// NewWorkflowEngine wires the engine with an empty agent registry.
func NewWorkflowEngine(workflows domain.WorkflowRepository, executions domain.ExecutionRepository) *WorkflowEngine {
	return &WorkflowEngine{
		workflows:  workflows,
		executions: executions,
		agents:     make(map[string]AgentFunc),
	}
}

// RegisterAgent adds a named agent callable. Registration happens before any
// execution starts.
func (e *WorkflowEngine) RegisterAgent(name string, fn AgentFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[name] = fn
}

func (e *WorkflowEngine) agent(name string) AgentFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if fn, ok := e.agents[name]; ok {
		return fn
	}
	// Unknown agent names resolve to identity.
	return identityAgent
}

func identityAgent(_ context.Context, st *WorkflowState) (*WorkflowState, error) {
	return st, nil
}

// Execute runs the workflow with the given caller input and returns the final
// execution record.
func (e *WorkflowEngine) Execute(ctx context.Context, workflowID string, input map[string]any) (domain.WorkflowExecution, error) {
	w, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return domain.WorkflowExecution{}, err
	}
	var def graphDef
	if err := json.Unmarshal(w.Definition, &def); err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("op=workflow.definition decode: %w", domain.ErrInvalidArgument)
	}
	g, err := buildGraph(def)
	if err != nil {
		return domain.WorkflowExecution{}, err
	}

	started := time.Now().UTC()
	exec := domain.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: w.ID,
		Status:     domain.ExecutionRunning,
		StartedAt:  started,
		Results:    map[string]json.RawMessage{},
	}
	if id, err := e.executions.Create(ctx, exec); err == nil && id != "" {
		exec.ID = id
	}

	st := &WorkflowState{
		WorkflowID:  w.ID,
		ExecutionID: exec.ID,
		Context:     input,
		Results:     make(map[string]any),
	}
	if st.Context == nil {
		st.Context = map[string]any{}
	}

	tracker := &execTracker{exec: &exec, repo: e.executions}
	if w.ExecutionMode == domain.ModeParallel {
		st = e.runParallel(ctx, g, st, tracker)
	} else {
		st = e.runSequential(ctx, g, st, tracker)
	}

	now := time.Now().UTC()
	exec.ExecutionTimeMS = now.Sub(started).Milliseconds()
	exec.Progress = 100
	exec.CompletedAt = &now
	exec.Errors = st.Errors
	if len(st.Errors) == 0 {
		exec.Status = domain.ExecutionCompleted
	} else {
		exec.Status = domain.ExecutionFailed
	}
	exec.Results = marshalResults(st.Results)
	if err := e.executions.Update(ctx, exec); err != nil {
		return exec, fmt.Errorf("op=workflow.finalize: %w", err)
	}
	observability.WorkflowExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()
	return exec, nil
}

func marshalResults(in map[string]any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		blob, err := json.Marshal(v)
		if err != nil {
			blob, _ = json.Marshal(fmt.Sprint(v))
		}
		out[k] = blob
	}
	return out
}

// graph is the validated, executable form of a definition.
type graph struct {
	nodes      []nodeDef
	byID       map[string]nodeDef
	successors map[string][]string // edge declaration order preserved
	entry      string
}

func buildGraph(def graphDef) (*graph, error) {
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("op=workflow.graph: no nodes: %w", domain.ErrInvalidArgument)
	}
	g := &graph{
		nodes:      def.Nodes,
		byID:       make(map[string]nodeDef, len(def.Nodes)),
		successors: make(map[string][]string),
	}
	for _, n := range def.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("op=workflow.graph: node without id: %w", domain.ErrInvalidArgument)
		}
		if _, dup := g.byID[n.ID]; dup {
			return nil, fmt.Errorf("op=workflow.graph: duplicate node %s: %w", n.ID, domain.ErrInvalidArgument)
		}
		g.byID[n.ID] = n
	}
	for _, e := range def.Edges {
		if _, ok := g.byID[e.From]; !ok {
			return nil, fmt.Errorf("op=workflow.graph: edge from unknown node %s: %w", e.From, domain.ErrInvalidArgument)
		}
		if _, ok := g.byID[e.To]; !ok {
			return nil, fmt.Errorf("op=workflow.graph: edge to unknown node %s: %w", e.To, domain.ErrInvalidArgument)
		}
		g.successors[e.From] = append(g.successors[e.From], e.To)
	}
	// Exactly one entry is selected as start: first flagged node, else the
	// first declared node.
	for _, n := range def.Nodes {
		if n.IsEntry {
			g.entry = n.ID
			break
		}
	}
	if g.entry == "" {
		g.entry = def.Nodes[0].ID
	}
	return g, nil
}

// execTracker serializes progress writes to the shared execution record.
// Parallel branches report through the same tracker, so the record is never
// mutated concurrently; the snapshot persisted per step is taken under the
// lock.
type execTracker struct {
	mu   sync.Mutex
	exec *domain.WorkflowExecution
	repo domain.ExecutionRepository
}

func (t *execTracker) step(ctx context.Context, nodeID string, progress int) {
	t.mu.Lock()
	t.exec.CurrentNode = nodeID
	t.exec.Progress = progress
	snapshot := *t.exec
	t.mu.Unlock()
	_ = t.repo.Update(ctx, snapshot)
}

// runNode dispatches one node and merges its outcome into st, returning the
// next state. On agent error the previous state is retained and the error is
// appended; execution continues.
func (e *WorkflowEngine) runNode(ctx context.Context, n nodeDef, st *WorkflowState, tracker *execTracker, progress int) *WorkflowState {
	tracker.step(ctx, n.ID, progress)

	var fn AgentFunc
	switch n.Type {
	case "agent":
		fn = e.agent(n.Agent)
	default:
		// tool and condition nodes are identity pass-throughs.
		fn = identityAgent
	}

	next, err := fn(ctx, st)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("node %s: %v", n.ID, err))
		return st
	}
	if next == nil {
		return st
	}
	return next
}

// runSequential walks the chain from the entry node, following edges in
// declaration order, until a finish node or a node without successors.
func (e *WorkflowEngine) runSequential(ctx context.Context, g *graph, st *WorkflowState, tracker *execTracker) *WorkflowState {
	visited := make(map[string]bool, len(g.nodes))
	current := g.entry
	step := 0
	for current != "" && !visited[current] {
		visited[current] = true
		n := g.byID[current]
		step++
		st = e.runNode(ctx, n, st, tracker, step*100/len(g.nodes))
		if n.IsFinish {
			break
		}
		current = ""
		for _, succ := range g.successors[n.ID] {
			if !visited[succ] {
				current = succ
				break
			}
		}
	}
	return st
}

// runParallel executes the entry node, then schedules its independent
// successors concurrently; the terminal sink waits on all branches. Each
// branch continues sequentially and writes disjoint results keys into its own
// state clone; clones are merged once all branches complete. Graphs without a
// fan-out degrade to sequential execution.
func (e *WorkflowEngine) runParallel(ctx context.Context, g *graph, st *WorkflowState, tracker *execTracker) *WorkflowState {
	entry := g.byID[g.entry]
	branches := g.successors[g.entry]
	if len(branches) < 2 {
		return e.runSequential(ctx, g, st, tracker)
	}

	st = e.runNode(ctx, entry, st, tracker, 100/len(g.nodes))

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]*WorkflowState, len(branches))
	completed := 1
	for i, branchStart := range branches {
		wg.Add(1)
		go func(i int, start string) {
			defer wg.Done()
			branch := st.Clone()
			visited := map[string]bool{g.entry: true}
			current := start
			for current != "" && !visited[current] {
				visited[current] = true
				n := g.byID[current]
				mu.Lock()
				completed++
				progress := completed * 100 / len(g.nodes)
				mu.Unlock()
				branch = e.runNode(ctx, n, branch, tracker, progress)
				if n.IsFinish {
					break
				}
				current = ""
				for _, succ := range g.successors[n.ID] {
					if !visited[succ] {
						current = succ
						break
					}
				}
			}
			results[i] = branch
		}(i, branchStart)
	}
	wg.Wait()

	// Merge branch clones back into the main state. Branches write disjoint
	// results keys; each branch contributes the errors it appended beyond the
	// shared prefix it was cloned with.
	base := len(st.Errors)
	for _, branch := range results {
		if branch == nil {
			continue
		}
		for k, v := range branch.Results {
			st.Results[k] = v
		}
		if len(branch.Errors) > base {
			st.Errors = append(st.Errors, branch.Errors[base:]...)
		}
	}
	return st
}

// GetExecution loads one execution record.
func (e *WorkflowEngine) GetExecution(ctx context.Context, id string) (domain.WorkflowExecution, error) {
	return e.executions.Get(ctx, id)
}

// ListExecutions lists recent executions of a workflow.
func (e *WorkflowEngine) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.WorkflowExecution, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.executions.ListByWorkflow(ctx, workflowID, limit)
}
