package fyreflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	minContextWindowTokensForBudget = 16_000
	maxContextWindowTokensForBudget = 1_000_000
	budgetCharsPerToken             = 4
	ellipsisMarker                  = "\n...[truncated]...\n"
	maxToolRoundsCap                = 2 // total invocations ≤ 1 + maxToolRoundsCap ≤ 3
	maxCallsPerRound                = 4
)

const canonicalContextTemplate = `` +
	`Task: {{task}}
Attempt: {{attempt}}

Upstream outputs:
{{upstream_outputs}}

Timeline:
{{timeline}}

Storage policy:
{{storage_policy}}

Output contract:
{{output_contract}}

Available MCP servers:
{{mcp_servers}}
`

// StepExecutionInput bundles everything the Step Executor needs to
// compose a step's context and drive its provider/tool rounds (spec
// §4.5).
type StepExecutionInput struct {
	Step            Step
	Provider        ProviderConfig // zero value ⇒ "provider not configured"
	Task            string
	Attempt         uint
	UpstreamOutputs map[string]string // upstream stepId -> its output
	Timeline        []string
	Storage         StoragePaths
	MCPServers      map[string]McpServerConfig // keyed by server id, allow-listed ones only
	StageTimeoutMs  int64                      // Runtime.Clamped().StageTimeoutMs
}

// StepExecutor composes a step's context and drives its provider and
// MCP tool-call rounds.
type StepExecutor struct {
	Provider ProviderExecutor
	Tools    McpToolInvoker
	Tracer   Tracer
	Logger   *slog.Logger
}

// NewStepExecutor constructs a StepExecutor with discard-by-default
// logging and no tracer.
func NewStepExecutor(provider ProviderExecutor, tools McpToolInvoker) *StepExecutor {
	return &StepExecutor{Provider: provider, Tools: tools, Logger: nopLogger()}
}

// Execute performs up to 1+maxToolRounds (≤3) ProviderExecutor
// invocations, dispatching any embedded MCP tool calls between rounds,
// and returns the final raw output (spec §4.5).
func (e *StepExecutor) Execute(ctx context.Context, in StepExecutionInput) (string, error) {
	if in.Provider.ID == "" {
		return fmt.Sprintf("STEP_DIAGNOSTIC: provider %q is not configured for step %q", in.Step.ProviderID, in.Step.ID), nil
	}

	var span Span
	if e.Tracer != nil {
		ctx, span = e.Tracer.Start(ctx, "step.execute", StringAttr("step.id", in.Step.ID))
		defer span.End()
	}

	workingContext := e.composeContext(in)
	var lastOutput string

	for round := 0; round <= maxToolRoundsCap; round++ {
		deadlineCtx, cancel := e.withStageDeadline(ctx, in.Step, in.StageTimeoutMs)
		prompt := expandTemplate(in.Step.Prompt, in)
		req := ChatRequest{Messages: []ChatMessage{
			SystemMessage(workingContext),
			UserMessage(prompt),
		}}

		output, err := e.Provider.Exec(deadlineCtx, in.Provider, in.Step, req)
		cancel()
		if err != nil {
			if span != nil {
				span.Error(err)
			}
			return "", err
		}
		lastOutput = output

		calls, ok := extractToolCalls(output)
		if !ok || len(calls) == 0 || round == maxToolRoundsCap {
			return lastOutput, nil
		}

		results := e.dispatchToolCalls(ctx, in, calls)
		workingContext = appendToolResults(workingContext, results)
	}
	return lastOutput, nil
}

// withStageDeadline merges ctx with a timer firing at the effective
// stage timeout: stageTimeoutMs clamped to [10s, 1_200_000ms], raised
// for long-reasoning or very-large-context step configurations.
func (e *StepExecutor) withStageDeadline(ctx context.Context, step Step, stageTimeoutMs int64) (context.Context, context.CancelFunc) {
	ms := clampInt64(stageTimeoutMs, minStageTimeoutMs, maxStageTimeoutMs)
	if step.ReasoningEffort == "high" || step.ContextWindowTokens >= maxContextWindowTokensForBudget {
		ms = maxStageTimeoutMs
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}

// composeContext expands the step's contextTemplate (falling back to
// the canonical template when empty) and clamps the result to a
// character budget of 4 × min(max(contextWindowTokens, 16000), 1_000_000).
func (e *StepExecutor) composeContext(in StepExecutionInput) string {
	template := in.Step.ContextTemplate
	if template == "" {
		template = canonicalContextTemplate
	}
	expanded := expandTemplate(template, in)

	tokens := in.Step.ContextWindowTokens
	if tokens < minContextWindowTokensForBudget {
		tokens = minContextWindowTokensForBudget
	}
	if tokens > maxContextWindowTokensForBudget {
		tokens = maxContextWindowTokensForBudget
	}
	budget := tokens * budgetCharsPerToken
	return clampToBudget(expanded, budget)
}

func expandTemplate(template string, in StepExecutionInput) string {
	r := strings.NewReplacer(
		"{{task}}", in.Task,
		"{{attempt}}", itoa(int(in.Attempt)),
		"{{upstream_outputs}}", formatUpstreamOutputs(in.UpstreamOutputs),
		"{{timeline}}", strings.Join(in.Timeline, "\n"),
		"{{storage_policy}}", formatStoragePolicy(in.Storage),
		"{{output_contract}}", formatOutputContract(in.Step),
		"{{mcp_servers}}", formatMCPServers(in.MCPServers),
	)
	return r.Replace(template)
}

func formatUpstreamOutputs(outputs map[string]string) string {
	if len(outputs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for stepID, out := range outputs {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", stepID, out)
	}
	return b.String()
}

func formatStoragePolicy(p StoragePaths) string {
	return fmt.Sprintf("shared=%s isolated=%s run=%s", p.SharedPath, p.IsolatedPath, p.RunPath)
}

func formatOutputContract(step Step) string {
	return fmt.Sprintf("format=%s requiredFields=%v requiredFiles=%v", step.OutputFormat, step.RequiredOutputFields, step.RequiredOutputFiles)
}

func formatMCPServers(servers map[string]McpServerConfig) string {
	if len(servers) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for id, s := range servers {
		fmt.Fprintf(&b, "%s (%s)\n", id, s.Name)
	}
	return b.String()
}

// clampToBudget keeps the head and tail of s within budget characters,
// joined by a visible ellipsis marker, when s exceeds the budget.
func clampToBudget(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	half := (budget - len(ellipsisMarker)) / 2
	if half <= 0 {
		return s[:budget]
	}
	return s[:half] + ellipsisMarker + s[len(s)-half:]
}

// mcpCallRequest is one embedded tool-call request parsed from a step's
// raw output.
type mcpCallRequest struct {
	ServerID  string          `json:"serverId"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// extractToolCalls looks for an embedded mcp_calls / mcpCalls /
// tool_calls array inside output's first JSON object (spec §4.5 step 3).
func extractToolCalls(output string) ([]mcpCallRequest, bool) {
	obj, ok := ExtractJSONObject(output)
	if !ok {
		return nil, false
	}
	for _, field := range []string{"mcp_calls", "mcpCalls", "tool_calls"} {
		v, found := JSONFieldValue(obj, field)
		if !found {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var calls []mcpCallRequest
		if err := json.Unmarshal(raw, &calls); err != nil {
			continue
		}
		return calls, true
	}
	return nil, false
}

// dispatchToolCalls invokes up to maxCallsPerRound calls through
// McpToolInvoker, one at a time; calls targeting a server outside the
// step's allow-list produce a synthetic failure instead of a real
// invocation (spec §4.5 step 4).
func (e *StepExecutor) dispatchToolCalls(ctx context.Context, in StepExecutionInput, calls []mcpCallRequest) []ToolCallResult {
	if len(calls) > maxCallsPerRound {
		calls = calls[:maxCallsPerRound]
	}
	results := make([]ToolCallResult, 0, len(calls))
	for _, call := range calls {
		server, allowed := in.MCPServers[call.ServerID]
		if !allowed {
			results = append(results, ToolCallResult{
				ServerID: call.ServerID,
				Tool:     call.Tool,
				OK:       false,
				Error:    fmt.Sprintf("server %q is not in this step's allow-list", call.ServerID),
			})
			continue
		}
		deadlineCtx, cancel := e.withStageDeadline(ctx, in.Step, in.StageTimeoutMs)
		result := e.Tools.Invoke(deadlineCtx, server, call.Tool, call.Arguments)
		cancel()
		results = append(results, result)
	}
	return results
}

func appendToolResults(workingContext string, results []ToolCallResult) string {
	block, err := json.Marshal(results)
	if err != nil {
		return workingContext
	}
	return workingContext + "\n\nTool call results:\n```json\n" + string(block) + "\n```\n"
}
