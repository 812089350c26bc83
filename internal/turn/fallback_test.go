package turn

import (
	"context"
	"testing"

	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
)

type namedProvider struct{ name string }

func (p namedProvider) Name() string                        { return p.name }
func (p namedProvider) Model() string                        { return "m" }
func (p namedProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }
func (p namedProvider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return nil, nil
}

func TestFallbackChain_AdvancesInOrderThenExhausts(t *testing.T) {
	a, b := namedProvider{"a"}, namedProvider{"b"}
	chain := NewFallbackChain(a, b)

	if chain.Current().Name() != "a" {
		t.Fatalf("expected current provider %q, got %q", "a", chain.Current().Name())
	}
	next, ok := chain.Advance()
	if !ok || next.Name() != "b" {
		t.Fatalf("expected advance to %q, got %v/%v", "b", next, ok)
	}
	if _, ok := chain.Advance(); ok {
		t.Fatal("expected the chain to be exhausted after its last provider")
	}
}

func TestFallbackChain_EmptyChainNeverAdvances(t *testing.T) {
	chain := NewFallbackChain()
	if chain.Current() != nil {
		t.Fatal("expected a nil current provider for an empty chain")
	}
	if _, ok := chain.Advance(); ok {
		t.Fatal("expected an empty chain to never report an advance")
	}
}

func TestFallbackChain_ResetReturnsToFirst(t *testing.T) {
	a, b := namedProvider{"a"}, namedProvider{"b"}
	chain := NewFallbackChain(a, b)
	chain.Advance()
	chain.Reset()
	if chain.Current().Name() != "a" {
		t.Fatalf("expected reset to return to %q, got %q", "a", chain.Current().Name())
	}
}

func TestSanitizeForProvider_StripsSignaturesNotPayload(t *testing.T) {
	history := []protocol.Message{
		{Role: protocol.RoleAssistant, Parts: []protocol.Part{
			{Type: protocol.PartText, Text: "hi"},
			{Type: protocol.PartToolCall, ToolCall: &protocol.ToolCall{ID: "c1", Name: "echo", ThoughtSig: []byte("sig")}},
			{Type: protocol.PartThinking, Thinking: "reasoning", ThinkingSignature: []byte("tsig")},
		}},
	}

	out := sanitizeForProvider(history)
	if len(out) != 1 || len(out[0].Parts) != 3 {
		t.Fatalf("expected shape to be preserved, got %+v", out)
	}
	if out[0].Parts[0].Text != "hi" {
		t.Fatalf("expected text part untouched, got %q", out[0].Parts[0].Text)
	}
	if out[0].Parts[1].ToolCall.ThoughtSig != nil {
		t.Fatal("expected ThoughtSig to be stripped")
	}
	if out[0].Parts[1].ToolCall.ID != "c1" || out[0].Parts[1].ToolCall.Name != "echo" {
		t.Fatal("expected ToolCall identity fields preserved")
	}
	if out[0].Parts[2].ThinkingSignature != nil {
		t.Fatal("expected ThinkingSignature to be stripped")
	}
	if out[0].Parts[2].Thinking != "reasoning" {
		t.Fatal("expected Thinking text preserved")
	}

	// Original history must be untouched (sanitize returns a copy).
	if history[0].Parts[1].ToolCall.ThoughtSig == nil {
		t.Fatal("sanitizeForProvider mutated the original history in place")
	}
}
