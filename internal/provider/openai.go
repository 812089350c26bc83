package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/turnforge/agentcore/internal/protocol"
)

// OpenAIProvider implements Provider against the OpenAI Responses API,
// which natively supports the tool-call/tool-result loop shape the turn
// engine needs (unlike the legacy Chat Completions API).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	info   protocol.ModelInfo
}

func NewOpenAIProvider(apiKey, model string, info protocol.ModelInfo) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client, model: model, info: info}
}

func (p *OpenAIProvider) Name() string                 { return "openai" }
func (p *OpenAIProvider) Model() string                { return p.model }
func (p *OpenAIProvider) ModelInfo() protocol.ModelInfo { return p.info }

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		ToolCalls:          true,
		ParallelToolCalls:  true,
		NativeWebSearch:    true,
		ReasoningSummaries: true,
	}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- protocol.Event) error {
		model := req.Model
		if model == "" {
			model = p.model
		}

		params := responses.ResponseNewParams{
			Model:        shared.ResponsesModel(model),
			Instructions: openai.String(req.System),
			Input:        responses.ResponseNewParamsInputUnion{OfInputItemList: buildOpenAIInput(req.Messages)},
		}

		tools := make([]responses.ToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			tool := responses.ToolParamOfFunction(spec.Name, spec.Schema, true)
			if spec.Description != "" {
				tool.OfFunction.Description = openai.String(spec.Description)
			}
			tools = append(tools, tool)
		}
		params.Tools = tools
		params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)

		if effort := protocol.EffortForLevel(req.Thinking); effort != "" {
			params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(effort)}
		}

		stream := p.client.Responses.NewStreaming(ctx, params)
		accumulator := newResponsesToolAccumulator()
		var usage protocol.Usage

		for stream.Next() {
			evt := stream.Current()
			switch variant := evt.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if variant.Delta != "" {
					events <- protocol.Event{Type: protocol.EventTextDelta, Text: variant.Delta}
				}
			case responses.ResponseOutputItemAddedEvent:
				if variant.Item.Type == "function_call" {
					accumulator.start(int(variant.OutputIndex), variant.Item.CallID, variant.Item.Name)
				}
			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				accumulator.append(int(variant.OutputIndex), variant.Delta)
			case responses.ResponseOutputItemDoneEvent:
				if variant.Item.Type == "function_call" {
					if call, ok := accumulator.finish(int(variant.OutputIndex), variant.Item.CallID, variant.Item.Name, variant.Item.Arguments); ok {
						events <- protocol.Event{Type: protocol.EventToolCall, Tool: &call, ToolCallID: call.ID, ToolName: call.Name}
					}
				}
			case responses.ResponseReasoningSummaryTextDeltaEvent:
				if variant.Delta != "" {
					events <- protocol.Event{Type: protocol.EventReasoningDelta, Text: variant.Delta}
				}
			case responses.ResponseCompletedEvent:
				if variant.Response.Usage.InputTokens > 0 || variant.Response.Usage.OutputTokens > 0 {
					usage.InputTokens = int(variant.Response.Usage.InputTokens)
					usage.OutputTokens = int(variant.Response.Usage.OutputTokens)
					usage.CachedInputTokens = int(variant.Response.Usage.InputTokensDetails.CachedTokens)
				}
			}
		}
		if err := stream.Err(); err != nil {
			return Classify(fmt.Errorf("openai responses stream: %w", err), openaiStatusCode(err))
		}

		events <- protocol.Event{Type: protocol.EventUsage, Use: &usage}
		events <- protocol.Event{Type: protocol.EventDone}
		return nil
	}), nil
}

func buildOpenAIInput(messages []protocol.Message) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			for _, part := range msg.Parts {
				if part.Type == protocol.PartText {
					items = append(items, responses.ResponseInputItemParamOfMessage(part.Text, responses.EasyInputMessageRoleUser))
				}
			}
		case protocol.RoleAssistant:
			for _, part := range msg.Parts {
				switch part.Type {
				case protocol.PartText:
					items = append(items, responses.ResponseInputItemParamOfMessage(part.Text, responses.EasyInputMessageRoleAssistant))
				case protocol.PartToolCall:
					if part.ToolCall != nil {
						items = append(items, responses.ResponseInputItemParamOfFunctionCall(
							string(part.ToolCall.Arguments), part.ToolCall.ID, part.ToolCall.Name))
					}
				}
			}
		case protocol.RoleTool:
			for _, part := range msg.Parts {
				if part.ToolResult != nil {
					items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
						part.ToolResult.ID, part.ToolResult.Content))
				}
			}
		}
	}
	return items
}

func openaiStatusCode(err error) int {
	var apiErr *openai.Error
	for e := error(err); e != nil; {
		if oe, ok := e.(*openai.Error); ok {
			apiErr = oe
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if apiErr != nil {
		return apiErr.StatusCode
	}
	return 0
}

// responsesToolAccumulator assembles streamed function_call argument
// fragments keyed by output index, mirroring the teacher's
// responses_api.go toolState handling.
type responsesToolAccumulator struct {
	pending map[int]*pendingResponsesCall
}

type pendingResponsesCall struct {
	id, name string
	args     string
}

func newResponsesToolAccumulator() *responsesToolAccumulator {
	return &responsesToolAccumulator{pending: make(map[int]*pendingResponsesCall)}
}

func (a *responsesToolAccumulator) start(index int, id, name string) {
	a.pending[index] = &pendingResponsesCall{id: id, name: name}
}

func (a *responsesToolAccumulator) append(index int, delta string) {
	if p, ok := a.pending[index]; ok {
		p.args += delta
	}
}

func (a *responsesToolAccumulator) finish(index int, id, name, finalArgs string) (protocol.ToolCall, bool) {
	p, ok := a.pending[index]
	if !ok {
		p = &pendingResponsesCall{id: id, name: name}
	}
	delete(a.pending, index)
	args := finalArgs
	if args == "" {
		args = p.args
	}
	if args == "" {
		args = "{}"
	}
	callID := id
	if callID == "" {
		callID = p.id
	}
	callName := name
	if callName == "" {
		callName = p.name
	}
	var raw json.RawMessage = []byte(args)
	return protocol.ToolCall{ID: callID, Name: callName, Arguments: raw}, true
}
