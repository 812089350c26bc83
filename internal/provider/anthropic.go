package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/turnforge/agentcore/internal/protocol"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	info   protocol.ModelInfo
}

// NewAnthropicProvider builds an Anthropic backend. Credential resolution
// (API key vs OAuth) is the caller's concern; this constructor takes an
// already-resolved API key, matching the simplest of the teacher's cascade
// ("explicit key from config").
func NewAnthropicProvider(apiKey, model string, info protocol.ModelInfo) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: model, info: info}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Capabilities() Capabilities {
	return Capabilities{
		ToolCalls:          true,
		ParallelToolCalls:  true,
		NativeWebSearch:    true,
		ReasoningSummaries: true,
		PromptCaching:      true,
	}
}

func (p *AnthropicProvider) ModelInfo() protocol.ModelInfo { return p.info }

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- protocol.Event) error {
		messages := buildAnthropicMessages(req.Messages)
		accumulator := newToolCallAccumulator()

		model := req.Model
		if model == "" {
			model = p.model
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens(req.MaxOutputTokens, 4096)),
			Messages:  messages,
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if len(req.Tools) > 0 {
			params.Tools = buildAnthropicTools(req.Tools)
			params.ToolChoice = buildAnthropicToolChoice(req.ToolChoice, req.ParallelToolCalls)
		}

		budget := int64(protocol.BudgetTokensForLevel(req.Thinking, req.MaxOutputTokens))
		if budget > 0 {
			if params.MaxTokens < budget+1024 {
				params.MaxTokens = budget + 1024
			}
			params.Thinking = anthropic.ThinkingConfigParamUnion{
				OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: budget},
			}
			// Thinking and an explicit tool_choice are mutually exclusive on
			// this API; let the model decide when reasoning is enabled.
			params.ToolChoice = anthropic.ToolChoiceUnionParam{}
		}

		if req.Debug {
			fmt.Fprintln(os.Stderr, "=== anthropic request ===")
			fmt.Fprintf(os.Stderr, "model=%s messages=%d tools=%d thinking_budget=%d\n",
				model, len(messages), len(req.Tools), budget)
		}

		var usage protocol.Usage
		stream := p.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			evt := stream.Current()
			switch variant := evt.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						accumulator.append(int(variant.Index), delta.PartialJSON)
					}
				case anthropic.TextDelta:
					if delta.Text != "" {
						events <- protocol.Event{Type: protocol.EventTextDelta, Text: delta.Text}
					}
				case anthropic.ThinkingDelta:
					if delta.Thinking != "" {
						events <- protocol.Event{Type: protocol.EventReasoningDelta, Text: delta.Thinking}
					}
				}
			case anthropic.ContentBlockStartEvent:
				switch block := variant.ContentBlock.AsAny().(type) {
				case anthropic.ToolUseBlock:
					accumulator.start(int(variant.Index), protocol.ToolCall{
						ID:        block.ID,
						Name:      block.Name,
						Arguments: toolInputToRaw(block.Input),
					})
				}
			case anthropic.ContentBlockStopEvent:
				if call, ok := accumulator.finish(int(variant.Index)); ok {
					events <- protocol.Event{Type: protocol.EventToolCall, Tool: &call, ToolCallID: call.ID, ToolName: call.Name}
				}
			case anthropic.MessageDeltaEvent:
				if variant.Usage.OutputTokens > 0 {
					usage.OutputTokens = int(variant.Usage.OutputTokens)
				}
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(variant.Message.Usage.InputTokens)
				usage.CachedInputTokens = int(variant.Message.Usage.CacheReadInputTokens)
				usage.CacheWriteTokens = int(variant.Message.Usage.CacheCreationInputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			return Classify(fmt.Errorf("anthropic stream: %w", err), anthropicStatusCode(err))
		}

		events <- protocol.Event{Type: protocol.EventUsage, Use: &usage}
		events <- protocol.Event{Type: protocol.EventDone}
		return nil
	}), nil
}

func maxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

func buildAnthropicMessages(messages []protocol.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser, protocol.RoleTool:
			blocks := anthropicContentBlocks(msg.Parts, false)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case protocol.RoleAssistant:
			blocks := anthropicContentBlocks(msg.Parts, true)
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	return out
}

func anthropicContentBlocks(parts []protocol.Part, assistant bool) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case protocol.PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case protocol.PartToolCall:
			if assistant && part.ToolCall != nil {
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, part.ToolCall.Arguments, part.ToolCall.Name))
			}
		case protocol.PartToolResult:
			if part.ToolResult != nil {
				blocks = append(blocks, toolResultBlock(part.ToolResult))
			}
		}
	}
	return blocks
}

func toolResultBlock(result *protocol.ToolResult) anthropic.ContentBlockParamUnion {
	content := make([]anthropic.ToolResultBlockParamContentUnion, 0)
	for _, cp := range result.ContentParts {
		switch cp.Type {
		case protocol.PartText:
			if cp.Text != "" {
				content = append(content, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: cp.Text}})
			}
		case protocol.PartImage:
			if cp.ImageData != nil {
				content = append(content, anthropic.ToolResultBlockParamContentUnion{
					OfImage: &anthropic.ImageBlockParam{
						Source: anthropic.ImageBlockParamSourceUnion{
							OfBase64: &anthropic.Base64ImageSourceParam{
								Data:      string(cp.ImageData.Data),
								MediaType: anthropic.Base64ImageSourceMediaType(cp.ImageData.MimeType),
							},
						},
					},
				})
			}
		}
	}
	if len(content) == 0 {
		content = append(content, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: result.Content}})
	}
	block := anthropic.ToolResultBlockParam{
		ToolUseID: result.ID,
		IsError:   anthropic.Bool(result.IsError),
		Content:   content,
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

func buildAnthropicTools(specs []protocol.ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   schemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func schemaRequired(schema map[string]interface{}) []string {
	raw, ok := schema["required"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func buildAnthropicToolChoice(choice protocol.ToolChoice, parallel bool) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case protocol.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case protocol.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: anthropic.Bool(!parallel)}}
	case protocol.ToolChoiceName:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name, DisableParallelToolUse: anthropic.Bool(!parallel)}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(!parallel)}}
	}
}

func anthropicStatusCode(err error) int {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		return apiErr.StatusCode
	}
	return 0
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	for err != nil {
		if ae, ok := err.(*anthropic.Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// toolCallAccumulator assembles streamed tool_use input JSON fragments
// keyed by content-block index, mirroring the teacher's accumulator in
// internal/llm/anthropic.go.
type toolCallAccumulator struct {
	pending map[int]*pendingToolCall
}

type pendingToolCall struct {
	call protocol.ToolCall
	json strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{pending: make(map[int]*pendingToolCall)}
}

func (a *toolCallAccumulator) start(index int, call protocol.ToolCall) {
	a.pending[index] = &pendingToolCall{call: call}
}

func (a *toolCallAccumulator) append(index int, fragment string) {
	if p, ok := a.pending[index]; ok {
		p.json.WriteString(fragment)
	}
}

func (a *toolCallAccumulator) finish(index int) (protocol.ToolCall, bool) {
	p, ok := a.pending[index]
	if !ok {
		return protocol.ToolCall{}, false
	}
	delete(a.pending, index)
	if p.json.Len() > 0 {
		p.call.Arguments = []byte(p.json.String())
	} else if p.call.Arguments == nil {
		p.call.Arguments = []byte("{}")
	}
	return p.call, true
}

func toolInputToRaw(input interface{}) []byte {
	if input == nil {
		return []byte("{}")
	}
	if raw, ok := input.([]byte); ok {
		return raw
	}
	return []byte("{}")
}
