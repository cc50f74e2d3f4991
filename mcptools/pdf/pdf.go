// Package pdf provides a PDF text extraction tool for MCP servers.
//
// It uses ledongthuc/pdf (BSD-3, pure Go, no CGO) for text extraction,
// grounded on the original content-extraction pattern this package
// replaces, reused here behind an MCP tool instead of an ingest pipeline
// stage.
package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nevindra/fyreflow/mcp"
)

// ToolName is the MCP tool name this package registers.
const ToolName = "extract_pdf"

// extractArgs is the tools/call argument shape for ToolName.
type extractArgs struct {
	Base64 string `json:"base64"`
}

// Extract extracts plain text from a PDF document's raw bytes.
func Extract(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}

	return strings.TrimSpace(string(text)), nil
}

// ToolHandler returns an mcp.ToolHandler that extracts text from a
// base64-encoded PDF document passed as the "base64" argument.
func ToolHandler() mcp.ToolHandler {
	return mcp.ToolHandler{
		Definition: mcp.ToolDefinition{
			Name:        ToolName,
			Description: "Extracts plain text from a base64-encoded PDF document.",
			InputSchema: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"base64": map[string]any{"type": "string"}},
				"required":             []string{"base64"},
				"additionalProperties": false,
			},
		},
		Execute: func(_ context.Context, args json.RawMessage) mcp.ToolCallResult {
			var a extractArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return mcp.ErrorResult(fmt.Sprintf("invalid arguments: %v", err))
			}
			content, err := base64.StdEncoding.DecodeString(a.Base64)
			if err != nil {
				return mcp.ErrorResult(fmt.Sprintf("invalid base64: %v", err))
			}
			text, err := Extract(content)
			if err != nil {
				return mcp.ErrorResult(err.Error())
			}
			return mcp.TextResult(text)
		},
	}
}
