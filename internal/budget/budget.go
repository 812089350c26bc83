// Package budget implements the Context Budget & Compaction component
// (spec §4.5): deterministic token estimation, per-turn budget allocation,
// the auto-compact trigger, and the compaction turn itself.
//
// The teacher repo references a Compact/CompactionConfig pair from its
// engine (internal/llm/engine.go calls Compact(...) and DefaultCompactionConfig())
// but neither is actually defined anywhere in the teacher snapshot — a
// dangling reference, not a usable implementation. The compaction turn here
// is instead grounded on goa-ai's runtime/agent/runtime/history.go
// Compress() policy: parsing history into logical turns, summarizing the
// older ones via a model request, and splicing in a synthetic summary
// message ahead of the retained recent turns. The 9-section structured
// summary prompt is this package's own per spec §4.5, replacing the
// 8-section prompt goa-ai's Compress uses.
package budget

import "math"

// DefaultCharsPerToken is the deterministic estimator's divisor absent a
// model-specific override.
const DefaultCharsPerToken = 4.0

// EstimateTokens deterministically estimates the token count of text, per
// spec §4.5: estimate(text) = ceil(len(text) / chars_per_token).
func EstimateTokens(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// Allocation is the per-turn budget breakdown spec §4.5 computes ahead of
// issuing a model request.
type Allocation struct {
	Total          int
	OutputReserved int
	Input          int
	SafetyReserved int

	SystemPrompt  int
	ToolDefs      int
	MemoryFiles   int
	UsedSoFar     int
	Conversation  int

	Utilization float64
}

// Compute builds an Allocation for one turn: total is the model's context
// window, outputReserved the tokens held back for the response, and
// systemPrompt/toolDefs/memoryFiles/alreadyUsedHistory are component token
// estimates the caller has already run through EstimateTokens.
func Compute(total, outputReserved, systemPrompt, toolDefs, memoryFiles, alreadyUsedHistory int) Allocation {
	input := total - outputReserved
	if input < 0 {
		input = 0
	}
	safety := int(math.Ceil(float64(input) * 0.05))

	usedComponents := systemPrompt + toolDefs + memoryFiles
	conversation := input - safety - usedComponents
	if conversation < 0 {
		conversation = 0
	}

	utilization := 0.0
	if input > 0 {
		utilization = float64(usedComponents+alreadyUsedHistory) / float64(input)
	}

	return Allocation{
		Total:          total,
		OutputReserved: outputReserved,
		Input:          input,
		SafetyReserved: safety,
		SystemPrompt:   systemPrompt,
		ToolDefs:       toolDefs,
		MemoryFiles:    memoryFiles,
		UsedSoFar:      alreadyUsedHistory,
		Conversation:   conversation,
		Utilization:    utilization,
	}
}

// DefaultCompactThreshold is the utilization ratio that triggers an
// auto-compact turn (spec §4.5).
const DefaultCompactThreshold = 0.8

// ShouldCompact reports whether the Turn Engine must run a compaction turn
// before issuing the next model request, per spec §4.5: utilization at or
// above threshold, or the previous response overflowed the context window.
func ShouldCompact(alloc Allocation, threshold float64, previousOverflowed bool) bool {
	if previousOverflowed {
		return true
	}
	if threshold <= 0 {
		threshold = DefaultCompactThreshold
	}
	return alloc.Utilization >= threshold
}
