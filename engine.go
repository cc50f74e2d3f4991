package fyreflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Engine is the top-level entry point: given a Flow, a task, and
// inputs, it creates a Run, drives it with the configured scheduler,
// and journals its state. Grounded on app.go's functional-options App,
// retargeted from the chat tool-calling loop to the run engine.
type Engine struct {
	store    Store
	provider ProviderExecutor
	tools    McpToolInvoker
	logger   *slog.Logger
	parallel bool
	onUpdate func(Run)

	mu       sync.Mutex
	controls map[string]*RunControlPlane
}

// Option configures an Engine.
type Option func(*Engine)

func WithStore(s Store) Option              { return func(e *Engine) { e.store = s } }
func WithProvider(p ProviderExecutor) Option { return func(e *Engine) { e.provider = p } }
func WithToolInvoker(t McpToolInvoker) Option { return func(e *Engine) { e.tools = t } }
func WithLogger(l *slog.Logger) Option      { return func(e *Engine) { e.logger = l } }

// WithParallelExecution selects the pool scheduler for flows that
// declare delegation-enabled steps, instead of always running serially.
func WithParallelExecution(enabled bool) Option { return func(e *Engine) { e.parallel = enabled } }

// WithOnRunUpdate registers a callback invoked synchronously with a
// snapshot of the Run after every step completes and whenever the run
// reaches a terminal status — the hook StartRun's callers use to
// stream progress (e.g. new log lines) without polling the Store.
func WithOnRunUpdate(fn func(Run)) Option { return func(e *Engine) { e.onUpdate = fn } }

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{logger: nopLogger(), controls: make(map[string]*RunControlPlane)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartRun creates a new Run for flow against task/inputs and drives it
// synchronously to a terminal status. Callers wanting several runs in
// flight concurrently invoke StartRun from their own goroutine per run;
// the Store is the only state shared across runs.
func (e *Engine) StartRun(ctx context.Context, flow Flow, task string, inputs map[string]string) (Run, error) {
	if e.store == nil {
		return Run{}, fmt.Errorf("engine: store is required")
	}

	runID := NewID()
	run := Run{
		ID: runID, PipelineID: flow.ID, PipelineName: flow.Name, Task: task,
		Inputs: NormalizeInputs(inputs), Status: StatusQueued, StartedAt: NowRFC3339(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("engine: create run: %w", err)
	}

	state, err := e.store.GetState(ctx)
	if err != nil {
		return Run{}, fmt.Errorf("engine: get state: %w", err)
	}
	providers, err := e.store.GetProviders(ctx)
	if err != nil {
		return Run{}, fmt.Errorf("engine: get providers: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := NewRunControlPlane(e.store, runID, cancel)
	e.registerControl(runID, control)
	defer e.unregisterControl(runID)

	journal := NewJournal(state.Storage, runID)
	if err := journal.WriteSnapshot(flow); err != nil {
		return Run{}, fmt.Errorf("engine: write snapshot: %w", err)
	}

	run, err = e.store.UpdateRun(ctx, runID, func(r Run) Run {
		r.Status = StatusRunning
		return r
	})
	if err != nil {
		return Run{}, fmt.Errorf("engine: mark running: %w", err)
	}

	graph := BuildGraph(flow)
	executor := NewStepExecutor(e.provider, e.tools)
	env := runExecEnv{flow: flow, providers: providers, mcpServers: mcpServersByID(state.McpServers), storageCfg: state.Storage}

	var result Run
	var runErr error
	if e.parallel && maxParallelSubagents(flow) > 1 {
		sched := &PoolScheduler{Executor: executor, Journal: journal, Control: control, Logger: e.logger, OnUpdate: e.onUpdate}
		result, runErr = sched.Run(runCtx, run, graph, env)
	} else {
		sched := &SerialScheduler{Executor: executor, Journal: journal, Control: control, Logger: e.logger, OnUpdate: e.onUpdate}
		result, runErr = sched.Run(runCtx, run, graph, env)
	}

	if _, err := e.store.UpdateRun(ctx, runID, func(Run) Run { return result }); err != nil {
		return result, fmt.Errorf("engine: persist final state: %w", err)
	}
	return result, runErr
}

// Cancel requests cancellation of runID. If the run is currently
// executing in this process, the in-flight scheduler is signalled
// directly; otherwise the store is mutated so the effect is observed
// whenever the run is next polled (spec §4.7 `cancel`).
func (e *Engine) Cancel(ctx context.Context, runID, reason string) (Run, error) {
	if c := e.control(runID); c != nil {
		return c.Cancel(ctx, reason)
	}
	return NewRunControlPlane(e.store, runID, nil).Cancel(ctx, reason)
}

// Pause requests a pause of runID (spec §4.7 `pause`).
func (e *Engine) Pause(ctx context.Context, runID, reason string) (Run, error) {
	if c := e.control(runID); c != nil {
		return c.Pause(ctx, reason)
	}
	return NewRunControlPlane(e.store, runID, nil).Pause(ctx, reason)
}

// Resume requests a resume of runID (spec §4.7 `resume`).
func (e *Engine) Resume(ctx context.Context, runID, reason string) (Run, error) {
	if c := e.control(runID); c != nil {
		return c.Resume(ctx, reason)
	}
	return NewRunControlPlane(e.store, runID, nil).Resume(ctx, reason)
}

// ResolveApproval resolves a pending approval for runID (spec §4.7 `resolveApproval`).
func (e *Engine) ResolveApproval(ctx context.Context, runID, approvalID string, decision ApprovalStatus, note string) (Run, error) {
	if c := e.control(runID); c != nil {
		return c.ResolveApproval(ctx, approvalID, decision, note)
	}
	return NewRunControlPlane(e.store, runID, nil).ResolveApproval(ctx, approvalID, decision, note)
}

func (e *Engine) registerControl(runID string, c *RunControlPlane) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controls[runID] = c
}

func (e *Engine) unregisterControl(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.controls, runID)
}

func (e *Engine) control(runID string) *RunControlPlane {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controls[runID]
}

func mcpServersByID(servers []McpServerConfig) map[string]McpServerConfig {
	out := make(map[string]McpServerConfig, len(servers))
	for _, s := range servers {
		out[s.ID] = s
	}
	return out
}
