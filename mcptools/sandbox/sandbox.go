// Package sandbox implements the sandboxed code-execution tool named in
// the engine's domain stack: CodeRunner implementations that let a
// step's generated code run in an isolated environment and call back
// into the run's other MCP tools via a dispatch bridge. The package
// itself registers no MCP tool handler.
package sandbox

import (
	"context"
	"time"

	"github.com/nevindra/fyreflow"
)

// CodeRunner executes code written by a model in a sandboxed
// environment. Implementations control the runtime (HTTP sandbox,
// subprocess, container).
type CodeRunner interface {
	// Run executes code and returns the result. dispatch bridges
	// call_tool() invocations made by the running code back to the
	// run's McpToolInvoker.
	Run(ctx context.Context, req CodeRequest, dispatch DispatchFunc) (CodeResult, error)
}

// DispatchFunc resolves one tool call made by code running inside the
// sandbox. Implementations typically wrap a fyreflow.McpToolInvoker.
type DispatchFunc func(ctx context.Context, call fyreflow.ToolCall) DispatchResult

// DispatchResult is the outcome of one dispatched tool call.
type DispatchResult struct {
	Content string
	IsError bool
}

// CodeRequest is the input to CodeRunner.Run.
type CodeRequest struct {
	// Code is the source code to execute.
	Code string `json:"code"`
	// Runtime selects the execution environment ("python", "node").
	// Empty defaults to "python".
	Runtime string `json:"runtime,omitempty"`
	// Timeout is the maximum execution duration. Zero means use runner default.
	Timeout time.Duration `json:"-"`
	// SessionID enables workspace persistence across executions.
	// Same session ID = same workspace directory. Empty = isolated per execution.
	SessionID string `json:"session_id,omitempty"`
	// Files are placed in the workspace before execution.
	// For input: populate Name + Data (inline) or Name + URL (sandbox downloads).
	Files []CodeFile `json:"files,omitempty"`
}

// CodeResult is the output of CodeRunner.Run.
type CodeResult struct {
	// Output is the structured result set via set_result() in code.
	Output string `json:"output"`
	// Logs captures print() output and stderr from the code execution.
	Logs string `json:"logs,omitempty"`
	// ExitCode is the process exit code (0 = success).
	ExitCode int `json:"exit_code"`
	// Error describes execution failure (timeout, syntax error, etc).
	Error string `json:"error,omitempty"`
	// Files are explicitly returned by the code via set_result(files=[...]).
	Files []CodeFile `json:"files,omitempty"`
}

// CodeFile represents a file transferred between app and sandbox.
//
// For input: Name + Data (inline bytes) or Name + URL (sandbox downloads via HTTP GET).
// For output: Name + MIME + Data (always inline).
type CodeFile struct {
	// Name is the filename (e.g. "chart.png", "data.csv").
	Name string `json:"name"`
	// MIME is the media type (e.g. "image/png"). Set on output files.
	MIME string `json:"mime,omitempty"`
	// Data holds inline file bytes. Tagged json:"-" to avoid double-encoding;
	// wire format uses base64 in a separate field.
	Data []byte `json:"-"`
	// URL is an alternative to Data: the sandbox downloads via HTTP GET.
	URL string `json:"url,omitempty"`
}
