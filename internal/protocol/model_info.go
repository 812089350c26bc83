package protocol

// ThinkingLevel is a provider-neutral knob for how much reasoning effort a
// model should spend on a turn. Each backend maps it onto its own native
// option: an effort string (OpenAI Responses "reasoning.effort") or a token
// budget (Anthropic and Bedrock thinking "budget_tokens", Gemini
// "thinkingBudget").
type ThinkingLevel string

const (
	ThinkingOff    ThinkingLevel = "off"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// EffortForLevel maps a ThinkingLevel onto the effort string accepted by
// effort-based backends (OpenAI).
func EffortForLevel(level ThinkingLevel) string {
	switch level {
	case ThinkingLow:
		return "low"
	case ThinkingMedium:
		return "medium"
	case ThinkingHigh:
		return "high"
	default:
		return ""
	}
}

// BudgetTokensForLevel maps a ThinkingLevel onto a thinking-token budget for
// budget-based backends (Anthropic, Bedrock, Gemini). Zero means thinking
// disabled.
func BudgetTokensForLevel(level ThinkingLevel, maxOutputTokens int) int {
	switch level {
	case ThinkingLow:
		return 2048
	case ThinkingMedium:
		return 8192
	case ThinkingHigh:
		if maxOutputTokens > 0 {
			return maxOutputTokens
		}
		return 24576
	default:
		return 0
	}
}

// ModelInfo describes the capabilities and limits of a specific model,
// consulted by the Context Budget (allocation, compaction trigger) and the
// provider backends (capability gating) alike.
type ModelInfo struct {
	Provider    string
	ID          string
	DisplayName string

	ContextWindow   int
	MaxOutputTokens int

	SupportsReasoningSummaries bool
	SupportsParallelToolCalls  bool
	DefaultReasoningEffort     ThinkingLevel

	// BaseInstructions is the provider/model-specific system-prompt prefix
	// the turn engine prepends ahead of the caller-supplied system prompt
	// (e.g. a Codex model's tool-use preamble).
	BaseInstructions string
}
