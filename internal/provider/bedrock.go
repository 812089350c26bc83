package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydoc "github.com/aws/smithy-go/document"

	"github.com/turnforge/agentcore/internal/protocol"
)

// BedrockProvider implements Provider against a Claude model hosted on
// Amazon Bedrock, using the cross-model Converse/ConverseStream API so the
// request shape stays provider-neutral at the AWS layer too.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	modelID string
	info    protocol.ModelInfo
}

// BedrockConfig configures credential resolution. An explicit AccessKey/
// SecretKey pair is honored first; otherwise the standard AWS credential
// chain (env vars, shared config, EC2/ECS role) resolves via awsconfig.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ModelID         string
}

func NewBedrockProvider(ctx context.Context, cfg BedrockConfig, info protocol.ModelInfo) (*BedrockProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
		info:    info,
	}, nil
}

func (p *BedrockProvider) Name() string                 { return "bedrock" }
func (p *BedrockProvider) Model() string                { return p.modelID }
func (p *BedrockProvider) ModelInfo() protocol.ModelInfo { return p.info }

func (p *BedrockProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, ParallelToolCalls: true}
}

func (p *BedrockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- protocol.Event) error {
		messages, err := buildBedrockMessages(req.Messages)
		if err != nil {
			return err
		}

		modelID := req.Model
		if modelID == "" {
			modelID = p.modelID
		}

		input := &bedrockruntime.ConverseStreamInput{
			ModelId:  aws.String(modelID),
			Messages: messages,
			InferenceConfig: &types.InferenceConfiguration{
				MaxTokens: int32Ptr(int32(maxTokens(req.MaxOutputTokens, 4096))),
			},
		}
		if req.System != "" {
			input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
		}
		if len(req.Tools) > 0 {
			input.ToolConfig = buildBedrockToolConfig(req.Tools, req.ToolChoice)
		}
		if budget := protocol.BudgetTokensForLevel(req.Thinking, req.MaxOutputTokens); budget > 0 {
			input.AdditionalModelRequestFields = bedrockThinkingDocument(budget)
		}

		out, err := p.client.ConverseStream(ctx, input)
		if err != nil {
			return Classify(fmt.Errorf("bedrock converse stream: %w", err), 0)
		}

		accumulator := newToolCallAccumulator()
		var usage protocol.Usage
		for event := range out.GetStream().Events() {
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					accumulator.start(int(v.Value.ContentBlockIndex), protocol.ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					})
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						events <- protocol.Event{Type: protocol.EventTextDelta, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						accumulator.append(int(v.Value.ContentBlockIndex), aws.ToString(delta.Value.Input))
					}
				case *types.ContentBlockDeltaMemberReasoningContent:
					if text, ok := delta.Value.(*types.ReasoningContentBlockDeltaMemberText); ok && text.Value != "" {
						events <- protocol.Event{Type: protocol.EventReasoningDelta, Text: text.Value}
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				if call, ok := accumulator.finish(int(v.Value.ContentBlockIndex)); ok {
					events <- protocol.Event{Type: protocol.EventToolCall, Tool: &call, ToolCallID: call.ID, ToolName: call.Name}
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					usage.InputTokens = int(aws.ToInt32(v.Value.Usage.InputTokens))
					usage.OutputTokens = int(aws.ToInt32(v.Value.Usage.OutputTokens))
				}
			}
		}
		if err := out.GetStream().Err(); err != nil {
			return Classify(fmt.Errorf("bedrock stream: %w", err), 0)
		}

		events <- protocol.Event{Type: protocol.EventUsage, Use: &usage}
		events <- protocol.Event{Type: protocol.EventDone}
		return nil
	}), nil
}

func int32Ptr(v int32) *int32 { return &v }

func buildBedrockMessages(messages []protocol.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var role types.ConversationRole
		switch msg.Role {
		case protocol.RoleUser, protocol.RoleTool:
			role = types.ConversationRoleUser
		case protocol.RoleAssistant:
			role = types.ConversationRoleAssistant
		default:
			continue
		}

		blocks := make([]types.ContentBlock, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case protocol.PartText:
				if part.Text != "" {
					blocks = append(blocks, &types.ContentBlockMemberText{Value: part.Text})
				}
			case protocol.PartToolCall:
				if part.ToolCall != nil {
					doc, err := bedrockDocumentFromJSON(part.ToolCall.Arguments)
					if err != nil {
						return nil, err
					}
					blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
						ToolUseId: aws.String(part.ToolCall.ID),
						Name:      aws.String(part.ToolCall.Name),
						Input:     doc,
					}})
				}
			case protocol.PartToolResult:
				if part.ToolResult != nil {
					blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
						ToolUseId: aws.String(part.ToolResult.ID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: part.ToolResult.Content}},
						Status:    bedrockResultStatus(part.ToolResult.IsError),
					}})
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out, nil
}

func bedrockResultStatus(isError bool) types.ToolResultStatus {
	if isError {
		return types.ToolResultStatusError
	}
	return types.ToolResultStatusSuccess
}

func buildBedrockToolConfig(specs []protocol.ToolSpec, choice protocol.ToolChoice) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		doc, _ := bedrockDocumentFromValue(spec.Schema)
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(spec.Name),
			Description: aws.String(spec.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: doc},
		}})
	}

	cfg := &types.ToolConfiguration{Tools: tools}
	switch choice.Mode {
	case protocol.ToolChoiceRequired:
		cfg.ToolChoice = &types.ToolChoiceMemberAny{}
	case protocol.ToolChoiceName:
		cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice.Name)}}
	default:
		cfg.ToolChoice = &types.ToolChoiceMemberAuto{}
	}
	return cfg
}

func bedrockDocumentFromJSON(raw json.RawMessage) (smithydoc.Interface, error) {
	var v interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("bedrock: invalid tool arguments: %w", err)
		}
	}
	return bedrockDocumentFromValue(v)
}

func bedrockDocumentFromValue(v interface{}) (smithydoc.Interface, error) {
	return smithydoc.NewLazyDocument(v), nil
}

func bedrockThinkingDocument(budgetTokens int) smithydoc.Interface {
	return smithydoc.NewLazyDocument(map[string]interface{}{
		"reasoning_config": map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": budgetTokens,
		},
	})
}
