package fyreflow

import (
	"context"
	"fmt"
	"log/slog"
)

// PoolScheduler runs a Flow's steps through a fixed pool of slots,
// letting independent branches execute concurrently up to
// maxParallelSubagents (spec §4.6 "Pool variant"). Grounded on the
// original reactive runDAG's dependents/remaining bookkeeping and
// loop.go's fixed-worker-pool dispatch idiom, recomposed around the
// retry-state queue instead of per-wave goroutine fan-out.
type PoolScheduler struct {
	Executor *StepExecutor
	Journal  *Journal
	Control  ControlPlane
	Logger   *slog.Logger

	// OnUpdate, if set, is invoked with a snapshot of run after every
	// journaled state transition — the in-process hook callers poll-free
	// log streaming rides on (spec §4.7's observability surface).
	OnUpdate func(Run)
}

// notify invokes OnUpdate, if set, with a copy of run.
func (s *PoolScheduler) notify(run Run) {
	if s.OnUpdate != nil {
		s.OnUpdate(run)
	}
}

// NewPoolScheduler constructs a PoolScheduler with discard-by-default logging.
func NewPoolScheduler(executor *StepExecutor, journal *Journal, control ControlPlane) *PoolScheduler {
	return &PoolScheduler{Executor: executor, Journal: journal, Control: control, Logger: nopLogger()}
}

// poolWorkerResult is one worker's finished step, delivered over the
// completion channel for Promise.race-equivalent collection.
type poolWorkerResult struct {
	step      Step
	stepRun   StepRun
	approvals []RunApproval
	result    stepExecResult
	err       error
}

// Run drives run to a terminal status using a bounded pool of
// concurrently in-flight steps. Each worker only touches data local to
// its own step (a snapshot of upstream outputs, its own StepRun); run,
// the shared upstream-output map, and the retry-state queue are
// mutated solely by the collection loop below, which never runs
// concurrently with a worker it hasn't yet joined.
func (s *PoolScheduler) Run(ctx context.Context, run Run, graph *Graph, env runExecEnv) (Run, error) {
	rt := graph.Flow.Runtime.Clamped()
	state := newRetryState(rt.MaxLoops, s.Logger)
	visited := make(map[string]bool)
	upstreamOutputs := make(map[string]string)
	var completionOrder []string

	maxParallel := maxParallelSubagents(graph.Flow)

	coordCtx, abortAll := context.WithCancel(ctx)
	defer abortAll()

	done := make(chan poolWorkerResult, maxParallel)
	inFlightSlots := 0

	for _, id := range graph.EntrySteps {
		state.Enqueue(id, "", "entry")
	}

	// done is sized to maxParallel, the largest possible number of
	// simultaneously in-flight workers, so every worker's single send
	// below is guaranteed a free buffer slot and never blocks — the
	// collection loop can always drain exactly one poolWorkerResult per
	// spawned worker, even after an abort.
	spawn := func(step Step, attempt uint, upstreamSnapshot map[string]string) {
		inFlightSlots++
		go func() {
			stepRun, approvals, result, err := runStepIsolated(coordCtx, s.Control, s.Executor, env, step, attempt, run.ID, run.Task, run.Inputs, upstreamSnapshot)
			done <- poolWorkerResult{step: step, stepRun: stepRun, approvals: approvals, result: result, err: err}
		}()
	}

	finalStatus := StatusCompleted
	finalMsg := ""

loop:
	for {
		if s.Control.Cancelled() {
			finalStatus, finalMsg = StatusCancelled, ""
			break loop
		}
		if err := s.Control.AwaitRunnable(ctx); err != nil {
			if s.Control.Cancelled() {
				finalStatus, finalMsg = StatusCancelled, ""
			} else {
				finalStatus, finalMsg = StatusFailed, err.Error()
			}
			break loop
		}

		capReached := state.TotalExecutions() >= rt.MaxStepExecutions
		if capReached && inFlightSlots == 0 {
			finalStatus, finalMsg = StatusFailed, ErrExecutionCapReached.Error()
			break loop
		}

		for inFlightSlots < maxParallel && !capReached {
			q, ok := state.Dequeue()
			if !ok {
				// Fallback dequeue only fires when the pool is idle, so
				// it never steals a slot from steps already in flight.
				if inFlightSlots == 0 {
					anchor := graph.FallbackAnchor(visited, completionOrder, state.Attempted, state.IsInFlight)
					if anchor == "" {
						break loop
					}
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
			if state.IsInFlight(step.ID) {
				// A step already running in a worker is never started twice.
				continue
			}
			attempt := state.BeginAttempt(step.ID)
			snapshot := make(map[string]string, len(upstreamOutputs))
			for k, v := range upstreamOutputs {
				snapshot[k] = v
			}
			spawn(step, attempt, snapshot)
		}

		if inFlightSlots == 0 {
			break loop
		}

		res := <-done
		inFlightSlots--
		state.EndAttempt(res.step.ID)
		visited[res.step.ID] = true
		completionOrder = append(completionOrder, res.step.ID)

		run.Steps = append(run.Steps, res.stepRun)
		run.Approvals = append(run.Approvals, res.approvals...)
		_ = s.Journal.WriteState(run)
		s.notify(run)

		if res.err != nil {
			abortAll()
			finalStatus, finalMsg = StatusFailed, res.err.Error()
			break loop
		}
		if res.result.StepErr != nil {
			abortAll()
			finalStatus, finalMsg = StatusFailed, res.result.StepErr.Error()
			break loop
		}
		if res.result.NeedsInput {
			abortAll()
			run.Log(fmt.Sprintf("step %s: requested additional input, run paused for remediation", res.step.ID))
			finalStatus, finalMsg = StatusFailed, "needs_input: "+res.step.ID
			break loop
		}

		upstreamOutputs[res.step.ID] = res.stepRun.Output

		next := graph.RouteSuccessors(res.step.ID, res.result.Outcome)
		if len(next) == 0 && graph.HasOutgoing(res.step.ID) {
			run.Log(fmt.Sprintf("step %s: no route matched outcome %s, dead end", res.step.ID, res.result.Outcome))
		}
		for _, id := range next {
			state.Enqueue(id, res.step.ID, "routed")
		}
	}

	// Drain any workers still racing to finish after a peer triggered abort.
	abortAll()
	for inFlightSlots > 0 {
		<-done
		inFlightSlots--
	}

	run.Status = finalStatus
	run.FinishedAt = NowRFC3339()
	if finalMsg != "" {
		run.Log(finalMsg)
	}
	_ = s.Journal.WriteState(run)
	s.notify(run)
	return run, nil
}

// runStepIsolated runs one step's skip-cache, Step Executor, and
// contract/gate/approval evaluation against a private snapshot of
// upstream outputs, touching no state shared with other concurrently
// running workers.
func runStepIsolated(
	ctx context.Context,
	control ControlPlane,
	executor *StepExecutor,
	env runExecEnv,
	step Step,
	attempt uint,
	runID string,
	task string,
	runInputs map[string]string,
	upstreamOutputs map[string]string,
) (StepRun, []RunApproval, stepExecResult, error) {
	stepRun := StepRun{StepID: step.ID, StepName: step.DisplayName, Attempts: attempt, StartedAt: NowRFC3339()}

	paths := ResolveStoragePaths(env.storageCfg, step, env.flow.ID, runID)
	if env.storageCfg.Enabled {
		if err := paths.EnsureDirs(); err != nil {
			stepRun.Status = StepFailed
			stepRun.Error = err.Error()
			stepRun.FinishedAt = NowRFC3339()
			return stepRun, nil, stepExecResult{Outcome: OutcomeFail}, fmt.Errorf("step %s: %w", step.ID, err)
		}
	}

	decision := EvaluateSkipCache(step, runInputs, task, nil, func(string) bool { return false }, paths, nil)

	var output string
	if decision.Skip {
		output = SyntheticSkipOutput(step, decision.Resolved)
	} else {
		provider := env.providers[step.ProviderID]
		out, err := executor.Execute(ctx, StepExecutionInput{
			Step:            step,
			Provider:        provider,
			Task:            task,
			Attempt:         attempt,
			UpstreamOutputs: upstreamOutputs,
			Storage:         paths,
			MCPServers:      env.mcpServers,
			StageTimeoutMs:  env.flow.Runtime.Clamped().StageTimeoutMs,
		})
		if err != nil {
			stepRun.Status = StepFailed
			stepRun.Error = err.Error()
			stepRun.FinishedAt = NowRFC3339()
			return stepRun, nil, stepExecResult{Outcome: OutcomeFail, StepErr: fmt.Errorf("step %s: %w", step.ID, err)}, nil
		}
		output = out
	}
	stepRun.Output = output

	if step.EnableDelegation {
		n := step.ClampedDelegationCount()
		for i := 1; i <= n; i++ {
			stepRun.SubagentNotes = append(stepRun.SubagentNotes, fmt.Sprintf("Subagent-%d dispatched to %s", i, step.ID))
		}
	}

	gateResults := EvaluateStepContracts(step, output, paths, runInputs)
	gateResults = append(gateResults, EvaluateQualityGates(env.flow.QualityGates, step.ID, output, paths, runInputs)...)
	stepRun.QualityGateResults = gateResults
	blockingFailed := !StepRun{QualityGateResults: gateResults}.AllBlockingGatesPassed()

	var approvals []RunApproval
	for _, gate := range env.flow.QualityGates {
		if gate.Kind != GateManualApproval || !gate.targets(step.ID) {
			continue
		}
		a, err := control.RequestApproval(ctx, gate, step, attempt)
		if err != nil {
			stepRun.Status = StepFailed
			stepRun.Error = err.Error()
			stepRun.FinishedAt = NowRFC3339()
			approvals = append(approvals, a)
			return stepRun, approvals, stepExecResult{Outcome: OutcomeFail, StepErr: fmt.Errorf("step %s: approval %s: %w", step.ID, gate.ID, err)}, nil
		}
		approvals = append(approvals, a)
		if a.Status == ApprovalRejected {
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

	return stepRun, approvals, stepExecResult{Outcome: outcome, NeedsInput: NeedsInput(output)}, nil
}

// maxParallelSubagents is the largest clamped delegationCount declared
// by any delegation-enabled step, with a floor of 1 (spec §4.6).
func maxParallelSubagents(flow Flow) int {
	max := 1
	for _, step := range flow.Steps {
		if n := step.ClampedDelegationCount(); step.EnableDelegation && n > max {
			max = n
		}
	}
	return max
}
