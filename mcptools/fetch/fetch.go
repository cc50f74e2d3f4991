// Package fetch provides a web page fetch-and-extract tool for MCP
// servers. It downloads a URL and reduces it to readable article text
// with go-shiori/go-readability, the same content-distillation role
// full-page HTML would otherwise play in a step's ContextTemplate.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/nevindra/fyreflow/mcp"
)

// ToolName is the MCP tool name this package registers.
const ToolName = "fetch_url"

// fetchArgs is the tools/call argument shape for ToolName.
type fetchArgs struct {
	URL string `json:"url"`
}

// Fetcher downloads a URL and extracts its readable article text.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher with the given HTTP client (a default
// client with a 15s timeout is used if nil).
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, timeout: 15 * time.Second}
}

// Fetch downloads rawURL and returns its extracted article title and text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (title, text string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", "", fmt.Errorf("extract article: %w", err)
	}

	return article.Title, article.TextContent, nil
}

// ToolHandler returns an mcp.ToolHandler that fetches and extracts the
// readable text of the URL passed as the "url" argument.
func (f *Fetcher) ToolHandler() mcp.ToolHandler {
	return mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        ToolName,
			Description: "Fetches a web page and returns its readable article text.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"url": map[string]any{"type": "string"}},
				"required":             []string{"url"},
				"additionalProperties": false,
			},
		},
		Execute: func(ctx context.Context, args json.RawMessage) mcp.ToolCallResult {
			var a fetchArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return mcp.ErrorResult(fmt.Sprintf("invalid arguments: %v", err))
			}
			title, text, err := f.Fetch(ctx, a.URL)
			if err != nil {
				return mcp.ErrorResult(err.Error())
			}
			if title != "" {
				return mcp.TextResult(title + "\n\n" + text)
			}
			return mcp.TextResult(text)
		},
	}
}
