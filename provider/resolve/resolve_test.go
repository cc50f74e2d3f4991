package resolve

import "testing"

func TestDefaultBaseURL(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
		{"deepseek", "https://api.deepseek.com/v1"},
		{"together", "https://api.together.xyz/v1"},
		{"mistral", "https://api.mistral.ai/v1"},
		{"ollama", "http://localhost:11434/v1"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := DefaultBaseURL(tt.name); got != tt.want {
			t.Errorf("DefaultBaseURL(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExecutor_Gemini(t *testing.T) {
	e, err := Executor(Config{Kind: "gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("executor is nil")
	}
}

func TestExecutor_GeminiWithOptions(t *testing.T) {
	temp := 0.7
	topP := 0.95
	thinking := true
	e, err := Executor(Config{
		Kind:        "gemini",
		Temperature: &temp,
		TopP:        &topP,
		Thinking:    &thinking,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("executor is nil")
	}
}

func TestExecutor_OpenAICompat(t *testing.T) {
	e, err := Executor(Config{Kind: "openai_compat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("executor is nil")
	}
}

func TestExecutor_OpenAICompatWithOptions(t *testing.T) {
	temp := 0.5
	topP := 0.9
	e, err := Executor(Config{
		Kind:        "openai_compat",
		Temperature: &temp,
		TopP:        &topP,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("executor is nil")
	}
}

func TestExecutor_ThinkingSkippedForOpenAICompat(t *testing.T) {
	thinking := true
	e, err := Executor(Config{Kind: "openai_compat", Thinking: &thinking})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil {
		t.Fatal("executor is nil")
	}
	// Thinking is silently ignored for openai_compat — no error, no panic.
}

func TestExecutor_UnknownKind(t *testing.T) {
	_, err := Executor(Config{Kind: "unknown-llm"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestExecutor_EmptyKind(t *testing.T) {
	_, err := Executor(Config{})
	if err == nil {
		t.Fatal("expected error for empty kind")
	}
}
