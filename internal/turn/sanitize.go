package turn

import "github.com/turnforge/agentcore/internal/protocol"

// sanitizeForProvider strips provider-opaque reasoning signatures
// (ThoughtSig on a tool call, ThinkingSignature on a thinking part) before
// history crosses to a different provider or model, per message.go's
// documented invariant: a signature "must never survive a sanitize pass
// aimed at a different provider or model." Used on every FallbackChain
// switch; sub-agent requests start with no history, so they never pass
// through it.
func sanitizeForProvider(history []protocol.Message) []protocol.Message {
	out := make([]protocol.Message, len(history))
	for i, m := range history {
		parts := make([]protocol.Part, len(m.Parts))
		for j, p := range m.Parts {
			if p.Type == protocol.PartToolCall && p.ToolCall != nil && len(p.ToolCall.ThoughtSig) > 0 {
				call := *p.ToolCall
				call.ThoughtSig = nil
				p.ToolCall = &call
			}
			if p.Type == protocol.PartThinking && len(p.ThinkingSignature) > 0 {
				p.ThinkingSignature = nil
			}
			if p.Type == protocol.PartToolResult && p.ToolResult != nil && len(p.ToolResult.ThoughtSig) > 0 {
				result := *p.ToolResult
				result.ThoughtSig = nil
				p.ToolResult = &result
			}
			parts[j] = p
		}
		out[i] = protocol.Message{Role: m.Role, Parts: parts}
	}
	return out
}
