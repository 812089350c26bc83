package protocol

import (
	"fmt"
	"strings"
)

// ErrInvalidHistory describes a history that cannot be repaired into a
// well-formed sequence. SanitizeForTarget does not return it: it always
// repairs, dropping orphan tool results (including one whose every candidate
// call was already claimed by an earlier duplicate-ID result) and turning
// dangling tool calls into text, and its error result is always nil.
type ErrInvalidHistory struct {
	Reason string
}

func (e *ErrInvalidHistory) Error() string {
	return fmt.Sprintf("invalid history: %s", e.Reason)
}

type toolCallRef struct {
	messageIndex int
	partIndex    int
}

// SanitizeForTarget normalizes a message history for delivery to a specific
// provider/model pair. It is idempotent: sanitizing an already-sanitized
// history for the same target is a no-op.
//
// Two passes run in order:
//  1. Tool-call/tool-result pairing repair: dangling tool calls (no matching
//     result, e.g. after compaction trimmed the result) are converted to
//     text so the model sees what it attempted instead of silently losing
//     the turn; orphan tool results (no matching call) are dropped.
//  2. Thinking-signature scrubbing: Thinking parts and ToolCall.ThoughtSig
//     values are signed by one specific provider/model pair. When the
//     target differs from the message's origin, the signature is opaque to
//     the target and must be stripped — carrying it forward produces a
//     provider-side signature-mismatch rejection.
func SanitizeForTarget(messages []Message, targetProvider, targetModel string, sourceProvider, sourceModel string) ([]Message, error) {
	paired := sanitizeToolPairing(messages)

	if sourceProvider == targetProvider && sourceModel == targetModel {
		return paired, nil
	}

	scrubbed := make([]Message, len(paired))
	for i, msg := range paired {
		parts := make([]Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartThinking:
				// Cross-target: drop the trace entirely rather than forward
				// an unsigned thinking block, which some providers reject
				// outright as malformed input.
				continue
			case PartToolCall:
				if part.ToolCall != nil && len(part.ToolCall.ThoughtSig) > 0 {
					call := *part.ToolCall
					call.ThoughtSig = nil
					part.ToolCall = &call
				}
			case PartToolResult:
				if part.ToolResult != nil && len(part.ToolResult.ThoughtSig) > 0 {
					result := *part.ToolResult
					result.ThoughtSig = nil
					part.ToolResult = &result
				}
			}
			parts = append(parts, part)
		}
		scrubbed[i] = Message{Role: msg.Role, Parts: parts}
	}

	return scrubbed, nil
}

// sanitizeToolPairing removes dangling tool calls and orphan tool results,
// preserving all other content and call/result pairing integrity.
func sanitizeToolPairing(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}

	sanitized := make([]Message, 0, len(messages))
	pendingCalls := make(map[string][]toolCallRef)
	matchedCalls := make(map[int]map[int]bool)

	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			assistantIndex := len(sanitized)
			parts := make([]Part, 0, len(msg.Parts))

			for _, part := range msg.Parts {
				cloned, ok := clonePart(part)
				if !ok {
					continue
				}

				if cloned.Type == PartToolCall {
					callID := ""
					if cloned.ToolCall != nil {
						callID = strings.TrimSpace(cloned.ToolCall.ID)
					}
					if callID == "" {
						continue
					}
					partIndex := len(parts)
					parts = append(parts, cloned)
					pendingCalls[callID] = append(pendingCalls[callID], toolCallRef{
						messageIndex: assistantIndex,
						partIndex:    partIndex,
					})
					continue
				}

				parts = append(parts, cloned)
			}

			if len(parts) > 0 {
				sanitized = append(sanitized, Message{Role: msg.Role, Parts: parts})
			}

		case RoleTool:
			parts := make([]Part, 0, len(msg.Parts))

			for _, part := range msg.Parts {
				cloned, ok := clonePart(part)
				if !ok {
					continue
				}

				if cloned.Type != PartToolResult {
					parts = append(parts, cloned)
					continue
				}

				resultID := ""
				if cloned.ToolResult != nil {
					resultID = strings.TrimSpace(cloned.ToolResult.ID)
				}
				if resultID == "" {
					continue
				}

				refs := pendingCalls[resultID]
				if len(refs) == 0 {
					continue
				}

				ref := refs[0]
				if len(refs) == 1 {
					delete(pendingCalls, resultID)
				} else {
					pendingCalls[resultID] = refs[1:]
				}

				if matchedCalls[ref.messageIndex] == nil {
					matchedCalls[ref.messageIndex] = make(map[int]bool)
				}
				matchedCalls[ref.messageIndex][ref.partIndex] = true

				parts = append(parts, cloned)
			}

			if len(parts) > 0 {
				sanitized = append(sanitized, Message{Role: msg.Role, Parts: parts})
			}

		default:
			sanitized = append(sanitized, Message{
				Role:  msg.Role,
				Parts: cloneParts(msg.Parts),
			})
		}
	}

	finalMessages := make([]Message, 0, len(sanitized))
	for msgIndex, msg := range sanitized {
		if msg.Role != RoleAssistant {
			finalMessages = append(finalMessages, msg)
			continue
		}

		matches := matchedCalls[msgIndex]
		parts := make([]Part, 0, len(msg.Parts))
		for partIndex, part := range msg.Parts {
			if part.Type == PartToolCall {
				if matches == nil || !matches[partIndex] {
					if part.ToolCall != nil {
						text := fmt.Sprintf("[tool call interrupted — id:%s name:%s args:%s]",
							part.ToolCall.ID, part.ToolCall.Name, string(part.ToolCall.Arguments))
						parts = append(parts, Part{Type: PartText, Text: text})
					}
					continue
				}
			}
			parts = append(parts, part)
		}

		if len(parts) > 0 {
			finalMessages = append(finalMessages, Message{
				Role:  msg.Role,
				Parts: parts,
			})
		}
	}

	return finalMessages
}

func cloneParts(parts []Part) []Part {
	cloned := make([]Part, 0, len(parts))
	for _, part := range parts {
		clone, ok := clonePart(part)
		if !ok {
			continue
		}
		cloned = append(cloned, clone)
	}
	return cloned
}

func clonePart(part Part) (Part, bool) {
	cloned := part

	switch part.Type {
	case PartImage:
		if part.ImageData != nil {
			imageCopy := *part.ImageData
			cloned.ImageData = &imageCopy
		}
	case PartToolCall:
		if part.ToolCall == nil {
			return Part{}, false
		}
		call := *part.ToolCall
		if len(call.Arguments) > 0 {
			call.Arguments = append([]byte(nil), call.Arguments...)
		}
		if len(call.ThoughtSig) > 0 {
			call.ThoughtSig = append([]byte(nil), call.ThoughtSig...)
		}
		cloned.ToolCall = &call

	case PartToolResult:
		if part.ToolResult == nil {
			return Part{}, false
		}
		result := *part.ToolResult
		if len(result.ContentParts) > 0 {
			result.ContentParts = cloneToolContentParts(result.ContentParts)
		}
		if len(result.Diffs) > 0 {
			result.Diffs = append([]DiffData(nil), result.Diffs...)
		}
		if len(result.Images) > 0 {
			result.Images = append([]string(nil), result.Images...)
		}
		if len(result.ThoughtSig) > 0 {
			result.ThoughtSig = append([]byte(nil), result.ThoughtSig...)
		}
		cloned.ToolResult = &result
	}

	return cloned, true
}

func cloneToolContentParts(parts []ToolContentPart) []ToolContentPart {
	cloned := make([]ToolContentPart, 0, len(parts))
	for _, part := range parts {
		copyPart := part
		if part.ImageData != nil {
			imageCopy := *part.ImageData
			copyPart.ImageData = &imageCopy
		}
		cloned = append(cloned, copyPart)
	}
	return cloned
}
