// Package protocol defines the provider-neutral message and event model that
// every component of agentcore shares: the turn engine, the provider
// backends, the tool executor, and the rollout writer all speak Message and
// Event, never a provider's wire format directly.
package protocol

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of content carried by a Part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartThinking   PartType = "thinking"
)

// Message holds a role with one or more structured content parts, mirroring
// the normalized cross-provider shape every backend converts to and from.
type Message struct {
	Role  Role
	Parts []Part
}

// Part is a single content block within a Message. Exactly one of the
// pointer/value fields matching Type is populated.
type Part struct {
	Type PartType

	Text string

	ImageData *ImageData

	ToolCall   *ToolCall
	ToolResult *ToolResult

	// Thinking carries a provider's reasoning trace. Signature is an opaque,
	// provider-specific token (Anthropic's thinking signature, Gemini's
	// thought signature) that proves the trace was genuinely produced by
	// that provider/model pair; it must never survive a sanitize pass aimed
	// at a different provider or model.
	Thinking          string
	ThinkingSignature []byte
}

// ImageData holds inline image bytes addressed by MIME type.
type ImageData struct {
	MimeType string
	Data     []byte
	URL      string
}

// ToolSpec describes a callable tool as advertised to a provider.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolChoiceMode controls tool-selection behavior for a single request.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceName     ToolChoiceMode = "name"
)

// ToolChoice configures which tool, if any, the model must call.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ToolCall is a model-requested tool invocation. ID must be unique within a
// single assistant message and is the correlation key a matching ToolResult
// must carry.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage

	// ThoughtSig is the provider-opaque signature accompanying a tool call
	// produced alongside a thinking block (Anthropic/Gemini interleaved
	// thinking). Carried through untouched so the provider can validate it
	// on the next turn, but stripped whenever sanitize targets a different
	// provider or model.
	ThoughtSig []byte
}

// ToolContentPart is one piece of a tool result's content, which may mix
// text and images (e.g. a screenshot tool or view_image).
type ToolContentPart struct {
	Type      PartType
	Text      string
	ImageData *ImageData
}

// DiffData is a structured representation of a file change produced by a
// tool (edit, apply_patch), retained on the ToolResult so renderers and the
// rollout log can reproduce the diff without re-deriving it.
type DiffData struct {
	Path     string
	OldText  string
	NewText  string
	Unified  string
}

// ToolResult is the output of executing a ToolCall. ID must match the
// ToolCall.ID it answers.
type ToolResult struct {
	ID      string
	Name    string
	Content string

	ContentParts []ToolContentPart
	Diffs        []DiffData
	Images       []string
	IsError      bool

	ThoughtSig []byte
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

func ToolResultMessage(id, name, content string, isError bool) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type:       PartToolResult,
			ToolResult: &ToolResult{ID: id, Name: name, Content: content, IsError: isError},
		}},
	}
}
