package openaicompat

import "testing"

func TestParseResponse_TextResponse(t *testing.T) {
	resp := ChatResponse{
		ID: "chatcmpl-123",
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChoiceMessage{
					Role:    "assistant",
					Content: "Hello! How can I help you?",
				},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			PromptTokens:     10,
			CompletionTokens: 8,
			TotalTokens:      18,
		},
	}

	content, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if content != "Hello! How can I help you?" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestParseResponse_ToolCallMessage(t *testing.T) {
	resp := ChatResponse{
		ID: "chatcmpl-456",
		Choices: []Choice{
			{
				Index: 0,
				Message: &ChoiceMessage{
					Role: "assistant",
					ToolCalls: []ToolCallRequest{
						{
							ID:   "call_abc",
							Type: "function",
							Function: FunctionCall{
								Name:      "get_weather",
								Arguments: `{"city":"London","units":"celsius"}`,
							},
						},
					},
				},
				FinishReason: "tool_calls",
			},
		},
	}

	content, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content for a tool-call-only message, got %q", content)
	}
}

func TestParseResponse_EmptyChoices(t *testing.T) {
	resp := ChatResponse{
		ID:      "chatcmpl-789",
		Choices: []Choice{},
	}

	content, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content, got %q", content)
	}
}

func TestParseResponse_NilMessage(t *testing.T) {
	resp := ChatResponse{
		ID: "chatcmpl-nilmsg",
		Choices: []Choice{
			{Delta: &ChoiceMessage{Content: "partial"}},
		},
	}

	content, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content when Message is nil, got %q", content)
	}
}
