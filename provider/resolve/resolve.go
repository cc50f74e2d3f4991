package resolve

import (
	"fmt"

	"github.com/nevindra/fyreflow"
	"github.com/nevindra/fyreflow/provider/gemini"
	"github.com/nevindra/fyreflow/provider/openaicompat"
)

// Config holds the cross-provider tuning knobs an engine operator fixes
// once at startup for a given ProviderConfig.Kind. Per-run identifiers
// (API key, model, base URL) travel with fyreflow.ProviderConfig and are
// supplied per call, since a single Executor instance serves every run's
// provider configs of that kind.
type Config struct {
	Kind string // "gemini" or "openai_compat"

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
	Thinking    *bool
}

// Executor creates a fyreflow.ProviderExecutor for the given Kind.
func Executor(cfg Config) (fyreflow.ProviderExecutor, error) {
	switch cfg.Kind {
	case "gemini":
		return geminiExecutor(cfg), nil
	case "openai_compat":
		return openaiCompatExecutor(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider kind %q", cfg.Kind)
	}
}

func geminiExecutor(cfg Config) fyreflow.ProviderExecutor {
	var opts []gemini.Option
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.Thinking != nil {
		opts = append(opts, gemini.WithThinking(*cfg.Thinking))
	}
	return gemini.New(opts...)
}

func openaiCompatExecutor(cfg Config) fyreflow.ProviderExecutor {
	var provOpts []openaicompat.ProviderOption

	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(provOpts...)
}

// DefaultBaseURL returns the chat-completions base URL for well-known
// openai_compat-kind providers, for use when populating a
// fyreflow.ProviderConfig.BaseURL during provider registration. Returns ""
// for providers requiring an explicit BaseURL (e.g. self-hosted vLLM).
func DefaultBaseURL(name string) string {
	switch name {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
