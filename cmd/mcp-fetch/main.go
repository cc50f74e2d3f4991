// Command mcp-fetch is a stdio MCP server exposing a single tool,
// fetch_url, for use as a "stdio"-transport McpServerConfig entry.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nevindra/fyreflow/mcp"
	"github.com/nevindra/fyreflow/mcptools/fetch"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("[mcp-fetch] ")
	log.SetOutput(os.Stderr)

	srv := mcp.New("fyreflow-fetch", "1.0.0")
	srv.AddTool(fetch.NewFetcher(nil).ToolHandler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
