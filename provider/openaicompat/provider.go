package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nevindra/fyreflow"
)

// Provider implements fyreflow.ProviderExecutor for any OpenAI-compatible API.
// It uses the shared helpers in this package (BuildBody, ParseResponse) to
// handle body building and response parsing.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek, Mistral,
// Ollama, vLLM, LM Studio, Azure OpenAI, and any other provider that implements
// the OpenAI chat completions API.
type Provider struct {
	client *http.Client
	name   string
	opts   []Option
}

// NewProvider creates an OpenAI-compatible chat provider executor. The
// base URL, model, and API key for a given run are supplied per call via
// ProviderConfig, since one Provider instance serves every run's
// "openai_compat" provider configs rather than one fixed endpoint.
//
// Provider-level options (WithTemperature, etc.) are applied to every request.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		client: &http.Client{},
		name:   "openai_compat",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai_compat", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Exec sends req against the model and endpoint named in provider and
// returns the rendered text. The step's ReasoningEffort and
// ContextWindowTokens are not yet surfaced to the chat completions body and
// are reserved for future wiring.
func (p *Provider) Exec(ctx context.Context, provider fyreflow.ProviderConfig, step fyreflow.Step, req fyreflow.ChatRequest) (string, error) {
	opts := p.opts
	if provider.MaxOutputTokens > 0 {
		opts = append(opts[:len(opts):len(opts)], WithMaxTokens(provider.MaxOutputTokens))
	}

	body := BuildBody(req.Messages, provider.Model, req.ResponseSchema, opts...)

	resp, err := p.sendHTTP(ctx, provider, body)
	if err != nil {
		return "", p.wrapErr(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", p.wrapErr(provider, fmt.Errorf("decode response: %w", err))
	}

	return ParseResponse(chatResp)
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (p *Provider) sendHTTP(ctx context.Context, provider fyreflow.ProviderConfig, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := provider.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
// Parses the Retry-After header when present (429/503 responses).
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &fyreflow.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// wrapErr wraps a transport or decode error as a ProviderError.
func (p *Provider) wrapErr(provider fyreflow.ProviderConfig, err error) error {
	return &fyreflow.ProviderError{Provider: provider.ID, Message: err.Error()}
}

// parseRetryAfter parses a Retry-After header given as delay-seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Compile-time interface check.
var _ fyreflow.ProviderExecutor = (*Provider)(nil)
