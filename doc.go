// Package fyreflow is a directed-graph run engine for AI agent flows.
//
// A Flow is a set of Steps wired together by conditional Links, plus a
// set of Quality Gates (contracts, regex/JSON checks, manual approvals)
// that govern whether a step's output counts as a pass or a fail. The
// Engine turns a Flow, a task, and a set of inputs into a Run: a
// journaled, resumable execution that a scheduler drives step by step
// to a terminal status (completed, failed, or cancelled).
//
// # Quick Start
//
// Compose an Engine from a Store, a ProviderExecutor, and a McpToolInvoker.
// API keys, models, and MCP servers are not constructor arguments: they
// travel per call in the ProviderConfig and McpServerConfig records the
// Store holds.
//
//	engine := fyreflow.New(
//		fyreflow.WithStore(sqlite.New("fyreflow.db")),
//		fyreflow.WithProvider(openaicompat.NewProvider()),
//		fyreflow.WithToolInvoker(mcp.NewClient(nil)),
//	)
//	run, err := engine.StartRun(ctx, flow, "summarize the attached report", inputs)
//
// # Core Interfaces
//
//   - [ProviderExecutor] — model backend invocation for a Step
//   - [McpToolInvoker] — MCP tool-call dispatch
//   - [Store] — the engine's single source of truth for run state
//   - [ControlPlane] — cancel/pause/resume/approval coordination surface
//
// # Execution model
//
// Two schedulers implement the same step-execution semantics:
// [SerialScheduler] runs one step at a time; [PoolScheduler] runs up to
// a flow-declared number of steps concurrently when a step enables
// delegation. Both journal run state after every step transition via
// [Journal], and both hand pause/cancel/approval coordination to a
// [ControlPlane] (see [RunControlPlane]).
//
// # Included implementations
//
// Storage: store/sqlite, store/postgres, store/memstore.
// Transport: mcp/client (MCP tool invocation over stdio/HTTP).
// Tools: mcptools/sandbox (sandboxed code execution), mcptools/fetch
// (web fetch + readability extraction), mcptools/pdf (PDF text extraction).
// Observability: observer (OpenTelemetry tracing, metrics, logging).
//
// See cmd/fyreflow-run for a complete reference application.
package fyreflow
