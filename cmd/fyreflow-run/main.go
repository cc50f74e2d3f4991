// Command fyreflow-run loads a flow definition from a JSON file and
// drives it to completion against a sqlite-backed Engine, streaming
// each step's log lines to stdout as they're appended and printing the
// final Run as JSON once the run reaches a terminal status.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nevindra/fyreflow"
	"github.com/nevindra/fyreflow/internal/config"
	"github.com/nevindra/fyreflow/mcp"
	"github.com/nevindra/fyreflow/provider/resolve"
	"github.com/nevindra/fyreflow/store/sqlite"
)

func main() {
	var (
		flowPath   = flag.String("flow", "", "path to a flow definition JSON file")
		task       = flag.String("task", "", "task description passed to the run")
		configPath = flag.String("config", "", "path to a fyreflow.toml config file")
		parallel   = flag.Bool("parallel", false, "enable the pool scheduler for delegation-enabled flows")
	)
	flag.Parse()

	if *flowPath == "" {
		log.Fatal("fyreflow-run: -flow is required")
	}

	cfg := config.Load(*configPath)
	if cfg.Provider.APIKey == "" {
		log.Fatal("fyreflow-run: FYREFLOW_LLM_API_KEY is required")
	}

	flowData, err := os.ReadFile(*flowPath)
	if err != nil {
		log.Fatalf("fyreflow-run: read flow: %v", err)
	}
	var flow fyreflow.Flow
	if err := json.Unmarshal(flowData, &flow); err != nil {
		log.Fatalf("fyreflow-run: parse flow: %v", err)
	}

	store := sqlite.New(cfg.Database.Path)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Init(ctx); err != nil {
		log.Fatalf("fyreflow-run: init store: %v", err)
	}
	defer store.Close()

	if err := store.PutProvider(ctx, fyreflow.ProviderConfig{
		ID: "default", Kind: cfg.Provider.Kind, Model: cfg.Provider.Model, APIKey: cfg.Provider.APIKey,
	}); err != nil {
		log.Fatalf("fyreflow-run: register provider: %v", err)
	}

	executor, err := resolve.Executor(resolve.Config{Kind: cfg.Provider.Kind})
	if err != nil {
		log.Fatalf("fyreflow-run: resolve provider: %v", err)
	}

	client := mcp.NewClient(nil)
	defer client.Close()

	printed := 0
	streamLogs := func(r fyreflow.Run) {
		for _, line := range r.Logs[printed:] {
			fmt.Println(line)
		}
		printed = len(r.Logs)
	}

	engine := fyreflow.New(
		fyreflow.WithStore(store),
		fyreflow.WithProvider(executor),
		fyreflow.WithToolInvoker(client),
		fyreflow.WithLogger(slog.Default()),
		fyreflow.WithParallelExecution(*parallel),
		fyreflow.WithOnRunUpdate(streamLogs),
	)

	run, err := engine.StartRun(ctx, flow, *task, nil)
	if err != nil {
		log.Fatalf("fyreflow-run: start run: %v", err)
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		log.Fatalf("fyreflow-run: marshal run: %v", err)
	}
	fmt.Println(string(out))
}
