package toolkit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turnforge/agentcore/internal/protocol"
)

// PlanModeState tracks whether the model is in plan mode and the plan text
// it last had approved. The tools here only flip the flag and carry the
// plan text; neither the scheduler nor the turn engine reads Active(), so
// plan mode does not block or re-route any tool call.
type PlanModeState struct {
	mu     sync.Mutex
	active bool
	plan   string
}

func NewPlanModeState() *PlanModeState { return &PlanModeState{} }

func (s *PlanModeState) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *PlanModeState) enter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.plan = ""
}

func (s *PlanModeState) exit(plan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.plan = plan
}

// Plan returns the text approved by the last exit_plan_mode call; entering
// plan mode again clears it.
func (s *PlanModeState) Plan() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// PlanApprover asks the user whether a drafted plan may proceed. Returning
// false asks the model to keep revising the plan instead of acting on it.
type PlanApprover func(ctx context.Context, plan string) (bool, error)

// EnterPlanModeTool implements the built-in "enter_plan_mode" tool.
// Exclusive: nothing else may run while the mode transition is in flight,
// since every subsequent scheduling decision depends on PlanModeState.
type EnterPlanModeTool struct {
	BaseTool
	state *PlanModeState
}

func NewEnterPlanModeTool(state *PlanModeState) *EnterPlanModeTool {
	return &EnterPlanModeTool{state: state}
}

func (t *EnterPlanModeTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "enter_plan_mode",
		Description: "Enter plan mode: investigate with read-only tools only until exit_plan_mode presents a plan for approval.",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"additionalProperties": false,
		},
	}
}

func (t *EnterPlanModeTool) ConcurrencySafety() ConcurrencySafety { return Exclusive }
func (t *EnterPlanModeTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }

func (t *EnterPlanModeTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	if t.state != nil {
		t.state.enter()
	}
	return TextResult(call, "Entered plan mode. Use only read-only tools until exit_plan_mode."), nil
}

// ExitPlanModeTool implements the built-in "exit_plan_mode" tool.
type ExitPlanModeTool struct {
	BaseTool
	state    *PlanModeState
	approver PlanApprover
}

func NewExitPlanModeTool(state *PlanModeState, approver PlanApprover) *ExitPlanModeTool {
	return &ExitPlanModeTool{state: state, approver: approver}
}

type exitPlanModeArgs struct {
	Plan string `json:"plan"`
}

func (t *ExitPlanModeTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{
		Name:        "exit_plan_mode",
		Description: "Present a drafted plan to the user for approval and, if approved, exit plan mode.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"plan": map[string]interface{}{"type": "string", "description": "The plan to present, in markdown"},
			},
			"required":             []string{"plan"},
			"additionalProperties": false,
		},
	}
}

func (t *ExitPlanModeTool) ConcurrencySafety() ConcurrencySafety { return Exclusive }
func (t *ExitPlanModeTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }

func (t *ExitPlanModeTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	var a exitPlanModeArgs
	if err := json.Unmarshal(call.Arguments, &a); err != nil {
		return ErrorResult(call, NewToolError(ErrInvalidInput, err.Error())), nil
	}
	if a.Plan == "" {
		return ErrorResult(call, NewToolError(ErrInvalidInput, "plan is required")), nil
	}

	approved := true
	if t.approver != nil {
		var err error
		approved, err = t.approver(ctx, a.Plan)
		if err != nil {
			return ErrorResult(call, NewToolErrorf(ErrExecutionFailed, "plan approval failed: %v", err)), nil
		}
	}

	if !approved {
		return TextResult(call, "Plan was not approved. Remaining in plan mode; revise and try again."), nil
	}

	if t.state != nil {
		t.state.exit(a.Plan)
	}
	return TextResult(call, "Plan approved. Exited plan mode."), nil
}
