package protocol

import "testing"

func TestSanitizeForTarget_DropsOrphanToolResult(t *testing.T) {
	messages := []Message{
		UserText("hi"),
		ToolResultMessage("call-1", "read", "contents", false),
	}

	out, err := SanitizeForTarget(messages, "anthropic", "claude", "anthropic", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected orphan tool result dropped, got %d messages", len(out))
	}
}

func TestSanitizeForTarget_ConvertsDanglingToolCallToText(t *testing.T) {
	messages := []Message{
		UserText("edit the file"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "call-1", Name: "edit", Arguments: []byte(`{}`)}},
			},
		},
	}

	out, err := SanitizeForTarget(messages, "anthropic", "claude", "anthropic", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	part := out[1].Parts[0]
	if part.Type != PartText {
		t.Fatalf("expected dangling call converted to text, got %v", part.Type)
	}
}

func TestSanitizeForTarget_PreservesMatchedPair(t *testing.T) {
	messages := []Message{
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "call-1", Name: "read", Arguments: []byte(`{}`)}},
			},
		},
		ToolResultMessage("call-1", "read", "contents", false),
	}

	out, err := SanitizeForTarget(messages, "anthropic", "claude", "anthropic", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected both messages preserved, got %d", len(out))
	}
	if out[0].Parts[0].Type != PartToolCall {
		t.Fatalf("expected matched tool call preserved, got %v", out[0].Parts[0].Type)
	}
}

func TestSanitizeForTarget_StripsThoughtSigAcrossProviders(t *testing.T) {
	messages := []Message{
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartThinking, Thinking: "reasoning trace", ThinkingSignature: []byte("sig")},
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "call-1", Name: "read", Arguments: []byte(`{}`), ThoughtSig: []byte("sig")}},
			},
		},
		ToolResultMessage("call-1", "read", "contents", false),
	}

	out, err := SanitizeForTarget(messages, "openai", "gpt-5.2", "anthropic", "claude-opus-4-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, part := range out[0].Parts {
		if part.Type == PartThinking {
			t.Fatalf("expected thinking part dropped for cross-provider target")
		}
		if part.Type == PartToolCall && part.ToolCall != nil && len(part.ToolCall.ThoughtSig) != 0 {
			t.Fatalf("expected ThoughtSig stripped for cross-provider target")
		}
	}
}

func TestSanitizeForTarget_IdempotentForSameTarget(t *testing.T) {
	messages := []Message{
		UserText("hi"),
		AssistantText("hello"),
	}

	first, err := SanitizeForTarget(messages, "anthropic", "claude", "anthropic", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SanitizeForTarget(first, "anthropic", "claude", "anthropic", "claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("sanitize not idempotent: %d vs %d messages", len(first), len(second))
	}
	for i := range first {
		if first[i].Role != second[i].Role || len(first[i].Parts) != len(second[i].Parts) {
			t.Fatalf("sanitize not idempotent at message %d", i)
		}
	}
}
