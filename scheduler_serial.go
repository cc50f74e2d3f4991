package fyreflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ControlPlane is the coordination surface a scheduler consults between
// steps: whether the run has been cancelled, a blocking wait for
// "runnable" (not paused, not awaiting an approval), and manual-approval
// resolution (spec §4.7). controlplane.go provides the implementation;
// schedulers depend only on this interface.
type ControlPlane interface {
	// Cancelled reports whether cancel has been requested for this run.
	Cancelled() bool
	// AwaitRunnable blocks until the run is neither paused nor awaiting
	// approval, or ctx is done, or cancel is requested.
	AwaitRunnable(ctx context.Context) error
	// RequestApproval materializes a RunApproval for gate/step/attempt,
	// transitions the run to awaiting_approval, and blocks until it is
	// resolved (or the run is cancelled).
	RequestApproval(ctx context.Context, gate QualityGate, step Step, attempt uint) (RunApproval, error)
}

// ErrExecutionCapReached is returned when a run exhausts its
// maxStepExecutions budget before reaching a terminal state.
var ErrExecutionCapReached = errors.New("execution cap reached")

// SerialScheduler runs a Flow's steps one at a time, in queue order,
// per spec §4.6's serial main loop. It is grounded on the original
// wave-based DAG runner, generalized into a single queue+retry-state
// loop (no per-wave goroutine fan-out).
type SerialScheduler struct {
	Executor *StepExecutor
	Journal  *Journal
	Control  ControlPlane
	Logger   *slog.Logger

	// OnUpdate, if set, is invoked with a snapshot of run after every
	// journaled state transition — the in-process hook callers poll-free
	// log streaming rides on (spec §4.7's observability surface).
	OnUpdate func(Run)
}

// NewSerialScheduler constructs a SerialScheduler with discard-by-default logging.
func NewSerialScheduler(executor *StepExecutor, journal *Journal, control ControlPlane) *SerialScheduler {
	return &SerialScheduler{Executor: executor, Journal: journal, Control: control, Logger: nopLogger()}
}

// runExecEnv carries the per-run read-only configuration a step needs
// beyond the Run/Graph/retryState, threaded through once per Run call.
type runExecEnv struct {
	flow       Flow
	providers  map[string]ProviderConfig
	mcpServers map[string]McpServerConfig
	storageCfg StorageConfig
}

// Run drives run to a terminal status, mutating and returning it.
func (s *SerialScheduler) Run(ctx context.Context, run Run, graph *Graph, env runExecEnv) (Run, error) {
	rt := graph.Flow.Runtime.Clamped()
	state := newRetryState(rt.MaxLoops, s.Logger)
	visited := make(map[string]bool)
	upstreamOutputs := make(map[string]string)
	wroteArtifact := make(map[string]bool)
	var completionOrder []string

	for _, id := range graph.EntrySteps {
		state.Enqueue(id, "", "entry")
	}

	for {
		if s.Control.Cancelled() {
			return s.finish(run, StatusCancelled, ""), nil
		}
		if err := s.Control.AwaitRunnable(ctx); err != nil {
			if s.Control.Cancelled() {
				return s.finish(run, StatusCancelled, ""), nil
			}
			return s.finish(run, StatusFailed, err.Error()), err
		}

		if state.TotalExecutions() >= rt.MaxStepExecutions {
			return s.finish(run, StatusFailed, ErrExecutionCapReached.Error()), ErrExecutionCapReached
		}

		q, ok := state.Dequeue()
		if !ok {
			if anchor := graph.FallbackAnchor(visited, completionOrder, state.Attempted, state.IsInFlight); anchor != "" {
				state.Enqueue(anchor, "", "disconnected fallback")
				continue
			}
			break
		}

		step, found := graph.Flow.StepByID(q.StepID)
		if !found {
			continue
		}
		if visited[step.ID] && !graph.HasOutgoing(step.ID) {
			continue
		}

		result, err := runStep(ctx, s.Control, s.Executor, &run, graph, state, env, step, upstreamOutputs, wroteArtifact)
		visited[step.ID] = true
		completionOrder = append(completionOrder, step.ID)
		_ = s.Journal.WriteState(run)
		s.notify(run)
		if err != nil {
			return s.finish(run, StatusFailed, err.Error()), err
		}
		if result.StepErr != nil {
			return s.finish(run, StatusFailed, result.StepErr.Error()), nil
		}
		if result.NeedsInput {
			run.Log(fmt.Sprintf("step %s: requested additional input, run paused for remediation", step.ID))
			return s.finish(run, StatusFailed, "needs_input: "+step.ID), nil
		}

		next := graph.RouteSuccessors(step.ID, result.Outcome)
		if len(next) == 0 && graph.HasOutgoing(step.ID) {
			run.Log(fmt.Sprintf("step %s: no route matched outcome %s, dead end", step.ID, result.Outcome))
		}
		for _, id := range next {
			state.Enqueue(id, step.ID, "routed")
		}
	}

	return s.finish(run, StatusCompleted, ""), nil
}

// stepExecResult is runStep's outcome. StepErr, when non-nil, is a
// genuine run-terminating failure (provider/tool error, timeout,
// broken approval coordination); a blocking gate or rejected approval
// never sets it — that case completes with Outcome == fail and routes
// via on_fail, per the fixed error-propagation policy (spec §7).
type stepExecResult struct {
	Outcome    WorkflowOutcome
	NeedsInput bool
	StepErr    error
}

// runStep executes one step through skip-cache, the Step Executor,
// contract/gate evaluation, and manual approvals, appending its
// StepRun to run. Shared by both the serial and pool schedulers.
func runStep(
	ctx context.Context,
	control ControlPlane,
	executor *StepExecutor,
	run *Run,
	graph *Graph,
	state *retryState,
	env runExecEnv,
	step Step,
	upstreamOutputs map[string]string,
	wroteArtifact map[string]bool,
) (stepExecResult, error) {
	attempt := state.BeginAttempt(step.ID)
	defer state.EndAttempt(step.ID)

	paths := ResolveStoragePaths(env.storageCfg, step, env.flow.ID, run.ID)
	if env.storageCfg.Enabled {
		if err := paths.EnsureDirs(); err != nil {
			return stepExecResult{Outcome: OutcomeFail}, fmt.Errorf("step %s: %w", step.ID, err)
		}
	}

	run.Log(fmt.Sprintf("step %s: attempt %d", step.ID, attempt))

	decision := EvaluateSkipCache(step, run.Inputs, run.Task, upstreamStepIDs(graph, step.ID), func(id string) bool { return wroteArtifact[id] }, paths, nil)

	stepRun := StepRun{StepID: step.ID, StepName: step.DisplayName, Attempts: attempt, StartedAt: NowRFC3339()}

	var output string
	if decision.Skip {
		output = SyntheticSkipOutput(step, decision.Resolved)
	} else {
		provider := env.providers[step.ProviderID]
		out, err := executor.Execute(ctx, StepExecutionInput{
			Step:            step,
			Provider:        provider,
			Task:            run.Task,
			Attempt:         attempt,
			UpstreamOutputs: upstreamOutputs,
			Timeline:        run.Logs,
			Storage:         paths,
			MCPServers:      env.mcpServers,
			StageTimeoutMs:  env.flow.Runtime.Clamped().StageTimeoutMs,
		})
		if err != nil {
			stepRun.Status = StepFailed
			stepRun.Error = err.Error()
			stepRun.FinishedAt = NowRFC3339()
			run.Steps = append(run.Steps, stepRun)
			return stepExecResult{Outcome: OutcomeFail, StepErr: fmt.Errorf("step %s: %w", step.ID, err)}, nil
		}
		output = out
		wroteArtifact[step.ID] = true
	}

	stepRun.Output = output

	if step.EnableDelegation {
		n := step.ClampedDelegationCount()
		for i := 1; i <= n; i++ {
			stepRun.SubagentNotes = append(stepRun.SubagentNotes, fmt.Sprintf("Subagent-%d dispatched to %s", i, step.ID))
		}
	}

	gateResults := EvaluateStepContracts(step, output, paths, run.Inputs)
	gateResults = append(gateResults, EvaluateQualityGates(env.flow.QualityGates, step.ID, output, paths, run.Inputs)...)
	stepRun.QualityGateResults = gateResults

	blockingFailed := !StepRun{QualityGateResults: gateResults}.AllBlockingGatesPassed()

	for _, gate := range env.flow.QualityGates {
		if gate.Kind != GateManualApproval || !gate.targets(step.ID) {
			continue
		}
		approval, err := control.RequestApproval(ctx, gate, step, attempt)
		if err != nil {
			stepRun.Status = StepFailed
			stepRun.Error = err.Error()
			stepRun.FinishedAt = NowRFC3339()
			run.Approvals = append(run.Approvals, approval)
			run.Steps = append(run.Steps, stepRun)
			return stepExecResult{Outcome: OutcomeFail, StepErr: fmt.Errorf("step %s: approval %s: %w", step.ID, gate.ID, err)}, nil
		}
		run.Approvals = append(run.Approvals, approval)
		if approval.Status == ApprovalRejected {
			stepRun.QualityGateResults = append(stepRun.QualityGateResults, StepQualityGateResult{
				GateID: gate.ID, GateName: gate.Name, Kind: gate.Kind, Status: GateFail, Blocking: gate.Blocking,
				Message: "manual approval rejected",
			})
			if gate.Blocking {
				blockingFailed = true
			}
		}
	}

	if blockingFailed {
		output = AppendQualityGatesBlocked(output, stepRun.QualityGateResults)
		stepRun.Output = output
	}

	outcome := DeriveOutcome(gateResults, output)
	if blockingFailed {
		outcome = OutcomeFail
	}
	stepRun.WorkflowOutcome = outcome
	stepRun.Status = StepCompleted
	if outcome == OutcomeFail {
		stepRun.Status = StepFailed
	}
	stepRun.FinishedAt = NowRFC3339()
	run.Steps = append(run.Steps, stepRun)
	upstreamOutputs[step.ID] = output

	return stepExecResult{Outcome: outcome, NeedsInput: NeedsInput(output)}, nil
}

func (s *SerialScheduler) finish(run Run, status RunStatus, errMsg string) Run {
	run.Status = status
	run.FinishedAt = NowRFC3339()
	if errMsg != "" {
		run.Log(errMsg)
	}
	_ = s.Journal.WriteState(run)
	s.notify(run)
	return run
}

// notify invokes OnUpdate, if set, with a copy of run.
func (s *SerialScheduler) notify(run Run) {
	if s.OnUpdate != nil {
		s.OnUpdate(run)
	}
}

// upstreamStepIDs returns the step ids with an edge into stepID.
func upstreamStepIDs(graph *Graph, stepID string) []string {
	links := graph.IncomingByStepID[stepID]
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.SourceStepID)
	}
	return ids
}
