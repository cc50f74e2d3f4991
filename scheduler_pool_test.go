package fyreflow

import (
	"context"
	"sync"
	"testing"
)

// concurrentFakeExecutor is safe for concurrent Exec calls, returning
// a fixed output per step id regardless of call order.
type concurrentFakeExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   int
}

func (f *concurrentFakeExecutor) Exec(_ context.Context, _ ProviderConfig, step Step, _ ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if out, ok := f.outputs[step.ID]; ok {
		return out, nil
	}
	return "done", nil
}

func fanOutFlow() Flow {
	return Flow{
		ID: "f1",
		Steps: []Step{
			{ID: "root", DisplayName: "Root", ProviderID: "p1", OutputFormat: OutputMarkdown, EnableDelegation: true, DelegationCount: 2},
			{ID: "branch-a", DisplayName: "A", ProviderID: "p1", OutputFormat: OutputMarkdown},
			{ID: "branch-b", DisplayName: "B", ProviderID: "p1", OutputFormat: OutputMarkdown},
			{ID: "join", DisplayName: "Join", ProviderID: "p1", OutputFormat: OutputMarkdown},
		},
		Links: []Link{
			{ID: "l1", SourceStepID: "root", TargetStepID: "branch-a", Condition: ConditionAlways},
			{ID: "l2", SourceStepID: "root", TargetStepID: "branch-b", Condition: ConditionAlways},
			{ID: "l3", SourceStepID: "branch-a", TargetStepID: "join", Condition: ConditionAlways},
			{ID: "l4", SourceStepID: "branch-b", TargetStepID: "join", Condition: ConditionAlways},
		},
		Runtime: Runtime{MaxLoops: 2, MaxStepExecutions: 20, StageTimeoutMs: 10_000},
	}
}

func TestPoolSchedulerRunsAllBranchesToCompletion(t *testing.T) {
	flow := fanOutFlow()
	graph := BuildGraph(flow)
	fe := &concurrentFakeExecutor{outputs: map[string]string{}}
	exec := NewStepExecutor(fe, &fakeInvoker{})
	dir := t.TempDir()
	journal := NewJournal(DefaultStorageConfig(dir), "run-1")
	sched := NewPoolScheduler(exec, journal, &fakeControlPlane{})

	run := Run{ID: "run-1", PipelineID: flow.ID, Task: "fan out", Status: StatusRunning}
	env := runExecEnv{flow: flow, providers: map[string]ProviderConfig{"p1": {ID: "p1"}}, storageCfg: DefaultStorageConfig(dir)}

	out, err := sched.Run(context.Background(), run, graph, env)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusCompleted {
		t.Fatalf("status = %s", out.Status)
	}
	if len(out.Steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(out.Steps))
	}
	var root *StepRun
	for i := range out.Steps {
		if out.Steps[i].StepID == "root" {
			root = &out.Steps[i]
		}
	}
	if root == nil || len(root.SubagentNotes) != 2 {
		t.Fatalf("expected root to record 2 subagent notes, got %+v", root)
	}
}

func TestPoolSchedulerCancelledMidRun(t *testing.T) {
	flow := fanOutFlow()
	graph := BuildGraph(flow)
	fe := &concurrentFakeExecutor{outputs: map[string]string{}}
	exec := NewStepExecutor(fe, &fakeInvoker{})
	dir := t.TempDir()
	journal := NewJournal(DefaultStorageConfig(dir), "run-1")
	sched := NewPoolScheduler(exec, journal, &fakeControlPlane{cancelled: true})

	run := Run{ID: "run-1", PipelineID: flow.ID, Status: StatusRunning}
	env := runExecEnv{flow: flow, providers: map[string]ProviderConfig{"p1": {ID: "p1"}}, storageCfg: DefaultStorageConfig(dir)}

	out, err := sched.Run(context.Background(), run, graph, env)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", out.Status)
	}
}

func TestMaxParallelSubagentsFloorsAtOne(t *testing.T) {
	flow := Flow{Steps: []Step{{ID: "a"}}}
	if got := maxParallelSubagents(flow); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestMaxParallelSubagentsTakesLargestDelegationCount(t *testing.T) {
	flow := Flow{Steps: []Step{
		{ID: "a", EnableDelegation: true, DelegationCount: 3},
		{ID: "b", EnableDelegation: true, DelegationCount: 5},
		{ID: "c", EnableDelegation: false, DelegationCount: 8},
	}}
	if got := maxParallelSubagents(flow); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}
