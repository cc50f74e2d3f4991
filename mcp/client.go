package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nevindra/fyreflow"
)

// Client implements fyreflow.McpToolInvoker by dialing a registered
// McpServerConfig's "stdio" or "http" transport and issuing a tools/call
// JSON-RPC request. Stdio connections are started lazily on first use and
// kept alive for the Client's lifetime; Close shuts all of them down.
type Client struct {
	httpClient *http.Client

	mu    sync.Mutex
	conns map[string]*stdioConn // keyed by McpServerConfig.ID
}

// NewClient creates an MCP client. httpClient is used for "http"-transport
// servers; a default client is used if nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, conns: make(map[string]*stdioConn)}
}

// Invoke calls tool on server with arguments, bounded by ctx. It never
// returns a Go error — transport and protocol failures are folded into
// ToolCallResult.OK/.Error per the McpToolInvoker contract.
func (c *Client) Invoke(ctx context.Context, server fyreflow.McpServerConfig, tool string, arguments []byte) fyreflow.ToolCallResult {
	if !server.Enabled {
		return fyreflow.ToolCallResult{ServerID: server.ID, Tool: tool, OK: false, Error: "server disabled"}
	}

	var result ToolCallResult
	var err error

	switch server.Transport {
	case "stdio":
		result, err = c.invokeStdio(ctx, server, tool, arguments)
	case "http":
		result, err = c.invokeHTTP(ctx, server, tool, arguments)
	default:
		err = fmt.Errorf("unknown transport %q", server.Transport)
	}

	if err != nil {
		return fyreflow.ToolCallResult{ServerID: server.ID, Tool: tool, OK: false, Error: err.Error()}
	}

	return fyreflow.ToolCallResult{
		ServerID: server.ID,
		Tool:     tool,
		OK:       !result.IsError,
		Output:   resultText(result),
		Error:    errText(result),
	}
}

func resultText(r ToolCallResult) string {
	if r.IsError {
		return ""
	}
	var sb strings.Builder
	for i, c := range r.Content {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func errText(r ToolCallResult) string {
	if !r.IsError {
		return ""
	}
	var sb strings.Builder
	for i, c := range r.Content {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Close terminates every stdio subprocess started by this client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, conn := range c.conns {
		if err := conn.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, id)
	}
	return firstErr
}

// --- stdio transport ---

// stdioConn is a long-lived subprocess speaking newline-delimited
// JSON-RPC 2.0 over its stdin/stdout, matching mcp.Server's wire format.
type stdioConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	nextID int64
	mu     sync.Mutex // serializes request/response round trips
}

func (c *Client) invokeStdio(ctx context.Context, server fyreflow.McpServerConfig, tool string, arguments []byte) (ToolCallResult, error) {
	conn, err := c.stdioConnFor(server)
	if err != nil {
		return ToolCallResult{}, err
	}
	return conn.call(ctx, tool, arguments)
}

func (c *Client) stdioConnFor(server fyreflow.McpServerConfig) (*stdioConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[server.ID]; ok {
		return conn, nil
	}
	if len(server.Command) == 0 {
		return nil, fmt.Errorf("stdio server %q has no command", server.ID)
	}

	cmd := exec.Command(server.Command[0], server.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", server.Command[0], err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), 10<<20)

	conn := &stdioConn{cmd: cmd, stdin: stdin, stdout: scanner}
	c.conns[server.ID] = conn
	return conn, nil
}

func (conn *stdioConn) call(ctx context.Context, tool string, arguments []byte) (ToolCallResult, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	id := atomic.AddInt64(&conn.nextID, 1)
	params, err := json.Marshal(toolCallParams{Name: tool, Arguments: arguments})
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal params: %w", err)
	}
	req := request{JSONRPC: "2.0", ID: json.RawMessage(fmt.Sprintf("%d", id)), Method: "tools/call", Params: params}

	payload, err := json.Marshal(req)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal request: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := conn.stdin.Write(payload); err != nil {
		return ToolCallResult{}, fmt.Errorf("write request: %w", err)
	}

	if !conn.stdout.Scan() {
		if err := conn.stdout.Err(); err != nil {
			return ToolCallResult{}, fmt.Errorf("read response: %w", err)
		}
		return ToolCallResult{}, fmt.Errorf("server closed connection")
	}

	var resp response
	if err := json.Unmarshal(conn.stdout.Bytes(), &resp); err != nil {
		return ToolCallResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return ToolCallResult{}, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result ToolCallResult
	resultBytes, err := json.Marshal(resp.Result)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, &result); err != nil {
		return ToolCallResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

func (conn *stdioConn) close() error {
	conn.stdin.Close()
	return conn.cmd.Wait()
}

// --- http transport ---

func (c *Client) invokeHTTP(ctx context.Context, server fyreflow.McpServerConfig, tool string, arguments []byte) (ToolCallResult, error) {
	if server.URL == "" {
		return ToolCallResult{}, fmt.Errorf("http server %q has no url", server.ID)
	}

	params, err := json.Marshal(toolCallParams{Name: tool, Arguments: arguments})
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal params: %w", err)
	}
	req := request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL, bytes.NewReader(payload))
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("post: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return ToolCallResult{}, fmt.Errorf("http %d: %s", httpResp.StatusCode, string(body))
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return ToolCallResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return ToolCallResult{}, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result ToolCallResult
	resultBytes, err := json.Marshal(resp.Result)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, &result); err != nil {
		return ToolCallResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

// Compile-time interface check.
var _ fyreflow.McpToolInvoker = (*Client)(nil)
