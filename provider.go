package fyreflow

import "context"

// ProviderExecutor is the capability boundary through which the Step
// Executor invokes a model provider (spec §6). Implementations may be
// HTTP-backed, local, or mocked; they are free to retry internally, but
// the engine's own retry decorator (WithRetry, retryexec.go) is the
// canonical place for that concern.
type ProviderExecutor interface {
	// Exec sends req against the named provider/model and returns the
	// raw response text. ctx carries the merged run-cancellation and
	// stage-deadline signal (spec §4.5); Exec must return promptly when
	// ctx is done.
	Exec(ctx context.Context, provider ProviderConfig, step Step, req ChatRequest) (string, error)
}

// McpToolInvoker is the capability boundary through which the Step
// Executor dispatches a parsed tool call to an MCP server (spec §6). It
// must never return an error in the happy path — failure modes are
// encoded in ToolCallResult.
type McpToolInvoker interface {
	// Invoke calls tool on server with arguments, bounded by ctx.
	Invoke(ctx context.Context, server McpServerConfig, tool string, arguments []byte) ToolCallResult
}

// ToolCallResult is the record McpToolInvoker.Invoke always returns,
// never an error: {serverId, tool, ok, output?, error?} per spec §6.
type ToolCallResult struct {
	ServerID string `json:"serverId"`
	Tool     string `json:"tool"`
	OK       bool   `json:"ok"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}
