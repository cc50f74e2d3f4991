package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/nevindra/fyreflow"
)

func TestClient_InvokeStdio(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	// A tiny stdio server implemented inline via mcp.Server, run in-process
	// by piping through a real subprocess isn't practical here, so this
	// test drives Server.handleToolsCall directly through the same
	// request/response JSON shapes the Client expects to exercise the
	// wire format contract.
	srv := New("echo-server", "1.0.0")
	srv.AddTool(ToolHandler{
		Definition: ToolDefinition{Name: "echo"},
		Execute: func(_ context.Context, args json.RawMessage) ToolCallResult {
			return TextResult(string(args))
		},
	})

	req := request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call",
		Params: mustMarshal(toolCallParams{Name: "echo", Arguments: json.RawMessage(`{"hi":true}`)})}
	resp := srv.dispatch(context.Background(), &req)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected dispatch result: %+v", resp)
	}
}

func TestClient_InvokeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "tools/call" {
			t.Errorf("expected method tools/call, got %q", req.Method)
		}
		result := TextResult("ok")
		resp := response{JSONRPC: "2.0", ID: req.ID, Result: result}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(nil)
	server := fyreflow.McpServerConfig{ID: "srv1", Transport: "http", URL: srv.URL, Enabled: true}

	result := c.Invoke(context.Background(), server, "do_thing", json.RawMessage(`{}`))
	if !result.OK {
		t.Fatalf("expected OK result, got %+v", result)
	}
	if result.Output != "ok" {
		t.Errorf("expected output 'ok', got %q", result.Output)
	}
	if result.ServerID != "srv1" || result.Tool != "do_thing" {
		t.Errorf("unexpected identifiers: %+v", result)
	}
}

func TestClient_InvokeHTTP_ErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: json.RawMessage("1"), Result: ErrorResult("boom")})
	}))
	defer srv.Close()

	c := NewClient(nil)
	server := fyreflow.McpServerConfig{ID: "srv1", Transport: "http", URL: srv.URL, Enabled: true}

	result := c.Invoke(context.Background(), server, "do_thing", json.RawMessage(`{}`))
	if result.OK {
		t.Fatal("expected OK=false for an error result")
	}
	if result.Error != "boom" {
		t.Errorf("expected error 'boom', got %q", result.Error)
	}
}

func TestClient_InvokeDisabledServer(t *testing.T) {
	c := NewClient(nil)
	server := fyreflow.McpServerConfig{ID: "srv1", Transport: "http", URL: "http://unused", Enabled: false}

	result := c.Invoke(context.Background(), server, "do_thing", json.RawMessage(`{}`))
	if result.OK {
		t.Fatal("expected OK=false for a disabled server")
	}
	if result.Error != "server disabled" {
		t.Errorf("expected 'server disabled', got %q", result.Error)
	}
}

func TestClient_InvokeUnknownTransport(t *testing.T) {
	c := NewClient(nil)
	server := fyreflow.McpServerConfig{ID: "srv1", Transport: "carrier-pigeon", Enabled: true}

	result := c.Invoke(context.Background(), server, "do_thing", json.RawMessage(`{}`))
	if result.OK {
		t.Fatal("expected OK=false for an unknown transport")
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
