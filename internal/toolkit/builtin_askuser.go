package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
)

// AskUserQuestion is one question presented to the user, grounded on the
// teacher's AskUserQuestion/AskUserOption shape.
type AskUserQuestion struct {
	Header      string           `json:"header"`
	Question    string           `json:"question"`
	Options     []AskUserOption  `json:"options"`
	MultiSelect bool             `json:"multi_select"`
}

type AskUserOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// AskUserAnswer is the user's response to one question.
type AskUserAnswer struct {
	QuestionIndex int      `json:"question_index"`
	Header        string   `json:"header"`
	Selected      string   `json:"selected"`
	SelectedList  []string `json:"selected_list,omitempty"`
	IsCustom      bool     `json:"is_custom"`
}

// ErrAskUserCancelled is returned by a Prompter when the user dismisses the
// question dialog without answering.
var ErrAskUserCancelled = errors.New("cancelled by user")

// AskUserPrompter presents questions to the user (terminal UI, a websocket
// round-trip, whatever the host surface is) and returns one answer per
// question, in order. The turn engine supplies the concrete implementation;
// toolkit only needs the contract.
type AskUserPrompter func(ctx context.Context, questions []AskUserQuestion) ([]AskUserAnswer, error)

// AskUserTool implements the built-in "ask_user_question" tool.
type AskUserTool struct {
	BaseTool
	prompt AskUserPrompter
}

func NewAskUserTool(prompt AskUserPrompter) *AskUserTool {
	return &AskUserTool{prompt: prompt}
}

type askUserArgs struct {
	Questions []AskUserQuestion `json:"questions"`
}

type askUserResult struct {
	Answers []AskUserAnswer `json:"answers,omitempty"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
}

func (t *AskUserTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "ask_user_question",
		Description: "Present up to 4 questions to the user and gather their answers. Use for clarification, preferences, or decisions that require the user's input before continuing.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"questions": map[string]interface{}{
					"type":     "array",
					"minItems": 1,
					"maxItems": 4,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"header":       map[string]interface{}{"type": "string", "description": "Short label, max 12 chars"},
							"question":     map[string]interface{}{"type": "string"},
							"multi_select": map[string]interface{}{"type": "boolean", "default": false},
							"options": map[string]interface{}{
								"type":     "array",
								"minItems": 2,
								"maxItems": 8,
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"label":       map[string]interface{}{"type": "string"},
										"description": map[string]interface{}{"type": "string"},
									},
									"required": []string{"label", "description"},
								},
							},
						},
						"required": []string{"header", "question", "options"},
					},
				},
			},
			"required":             []string{"questions"},
			"additionalProperties": false,
		},
	}
}

func (t *AskUserTool) ConcurrencySafety() ConcurrencySafety { return Mutating }
func (t *AskUserTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }

func (t *AskUserTool) Validate(args json.RawMessage) error {
	var a askUserArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return err
	}
	if len(a.Questions) == 0 || len(a.Questions) > 4 {
		return fmt.Errorf("questions must contain between 1 and 4 entries")
	}
	for i, q := range a.Questions {
		if q.Header == "" || len(q.Header) > 12 {
			return fmt.Errorf("question %d: header is required and must be at most 12 characters", i+1)
		}
		if q.Question == "" {
			return fmt.Errorf("question %d: question text is required", i+1)
		}
		if len(q.Options) < 2 || len(q.Options) > 8 {
			return fmt.Errorf("question %d: must have between 2 and 8 options", i+1)
		}
	}
	return nil
}

func (t *AskUserTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a askUserArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}

	if t.prompt == nil {
		return ErrorResult(call, NewToolError(ErrExecutionFailed, "no user prompt surface is configured")), nil
	}

	answers, err := t.prompt(ctx, a.Questions)
	if err != nil {
		if errors.Is(err, ErrAskUserCancelled) {
			return marshalAskUserResult(call, askUserResult{Error: "User dismissed the question dialog", Type: "USER_CANCELLED"}), nil
		}
		return marshalAskUserResult(call, askUserResult{Error: err.Error(), Type: string(ErrExecutionFailed)}), nil
	}
	if len(answers) != len(a.Questions) {
		return marshalAskUserResult(call, askUserResult{Error: "incomplete answers returned", Type: string(ErrExecutionFailed)}), nil
	}

	return marshalAskUserResult(call, askUserResult{Answers: answers}), nil
}

func marshalAskUserResult(call protocol.ToolCall, result askUserResult) protocol.ToolResult {
	data, err := json.Marshal(result)
	if err != nil {
		return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "failed to marshal result: %v", err))
	}
	return protocol.ToolResult{ID: call.ID, Name: call.Name, Content: string(data), IsError: result.Error != ""}
}
