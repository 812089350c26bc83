package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/turnforge/agentcore/internal/protocol"
)

// GeminiProvider implements Provider against the Gemini API.
type GeminiProvider struct {
	apiKey string
	model  string
	info   protocol.ModelInfo
}

func NewGeminiProvider(apiKey, model string, info protocol.ModelInfo) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model, info: info}
}

func (p *GeminiProvider) Name() string                     { return "gemini" }
func (p *GeminiProvider) Model() string                    { return p.model }
func (p *GeminiProvider) ModelInfo() protocol.ModelInfo     { return p.info }

func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{
		ToolCalls:         true,
		ParallelToolCalls: true,
		NativeWebSearch:   true,
	}
}

func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- protocol.Event) error {
		client, err := p.newClient(ctx)
		if err != nil {
			return fmt.Errorf("gemini: failed to create client: %w", err)
		}

		contents := buildGeminiContents(req.Messages)
		if len(contents) == 0 {
			return fmt.Errorf("gemini: no content provided")
		}

		config := &genai.GenerateContentConfig{}
		if req.System != "" {
			config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}

		// Gemini's thinking config is budget-based for this model family; the
		// turn engine already picked the level, we only translate it.
		if req.Thinking != protocol.ThinkingOff {
			budget := int32(protocol.BudgetTokensForLevel(req.Thinking, req.MaxOutputTokens))
			config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
		}

		if len(req.Tools) > 0 {
			config.Tools = buildGeminiTools(req.Tools)
			config.ToolConfig = buildGeminiToolConfig(req.ToolChoice)
		}

		model := req.Model
		if model == "" {
			model = p.model
		}

		var usage protocol.Usage
		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return Classify(fmt.Errorf("gemini stream: %w", err), 0)
			}

			var thoughtSig []byte
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					if part.Thought && len(part.ThoughtSignature) > 0 {
						thoughtSig = part.ThoughtSignature
						if part.Text != "" {
							events <- protocol.Event{Type: protocol.EventReasoningDelta, Text: part.Text}
						}
						continue
					}
					if part.Text != "" {
						events <- protocol.Event{Type: protocol.EventTextDelta, Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, _ := json.Marshal(part.FunctionCall.Args)
						sig := part.ThoughtSignature
						if sig == nil {
							sig = thoughtSig
						}
						call := protocol.ToolCall{
							ID:         part.FunctionCall.ID,
							Name:       part.FunctionCall.Name,
							Arguments:  args,
							ThoughtSig: sig,
						}
						events <- protocol.Event{Type: protocol.EventToolCall, Tool: &call, ToolCallID: call.ID, ToolName: call.Name}
					}
				}
			}

			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
				usage.CachedInputTokens = int(resp.UsageMetadata.CachedContentTokenCount)
			}
		}

		events <- protocol.Event{Type: protocol.EventUsage, Use: &usage}
		events <- protocol.Event{Type: protocol.EventDone}
		return nil
	}), nil
}

func buildGeminiContents(messages []protocol.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == protocol.RoleAssistant {
			role = genai.RoleModel
		}
		if msg.Role == protocol.RoleSystem {
			continue
		}

		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case protocol.PartText:
				if part.Text != "" {
					parts = append(parts, genai.NewPartFromText(part.Text))
				}
			case protocol.PartToolCall:
				if part.ToolCall != nil {
					var args map[string]any
					_ = json.Unmarshal(part.ToolCall.Arguments, &args)
					parts = append(parts, genai.NewPartFromFunctionCall(part.ToolCall.Name, args))
				}
			case protocol.PartToolResult:
				if part.ToolResult != nil {
					parts = append(parts, genai.NewPartFromFunctionResponse(part.ToolResult.Name, map[string]any{
						"result": part.ToolResult.Content,
					}))
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func buildGeminiTools(specs []protocol.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec.Schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(schema map[string]interface{}) *genai.Schema {
	props := map[string]*genai.Schema{}
	if raw, ok := schema["properties"].(map[string]interface{}); ok {
		for name, v := range raw {
			if m, ok := v.(map[string]interface{}); ok {
				props[name] = &genai.Schema{Type: genai.TypeString, Description: stringField(m, "description")}
			}
		}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: schemaRequired(schema)}
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func buildGeminiToolConfig(choice protocol.ToolChoice) *genai.ToolConfig {
	switch choice.Mode {
	case protocol.ToolChoiceNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}
	case protocol.ToolChoiceRequired:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}}
	case protocol.ToolChoiceName:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{choice.Name},
		}}
	default:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	}
}
