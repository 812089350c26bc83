package turn

import (
	"context"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
	"github.com/turnforge/agentcore/internal/subagent"
)

// ChildRunner adapts an Engine into a subagent.TurnRunner: RunSubAgent
// spawns call into subagent.Coordinator.Spawn, which in turn calls here to
// actually drive the nested conversation to completion (or until
// Background detaches it).
type ChildRunner struct {
	Provider  provider.Provider
	NewEngine func() *Engine
}

var _ subagent.TurnRunner = (*ChildRunner)(nil)

// RunTurn implements subagent.TurnRunner. It builds a single Request from
// spec (the forced developer note as a system-role prefix, the task prompt
// as the user message, no prior history — every sub-agent starts a fresh
// conversation per spec §4.6) and drives it via a freshly built Engine so
// concurrently spawned sub-agents never share turn-loop state. Of spec's
// forced constraints only ForcedDeveloperNote is applied: SandboxPolicy,
// ApprovalPolicy and Depth are not read, so the child runs with whatever
// tool registry and approval gate NewEngine supplies.
func (c *ChildRunner) RunTurn(ctx context.Context, spec subagent.ChildSessionSpec, events subagent.EventCallback) (subagent.TurnResult, error) {
	if c.Provider == nil || c.NewEngine == nil {
		return subagent.TurnResult{}, fmt.Errorf("turn: ChildRunner is not fully configured")
	}
	engine := c.NewEngine()

	systemPrompt := spec.ForcedDeveloperNote
	if systemPrompt == "" {
		systemPrompt = forcedChildInstruction
	}

	req := Request{
		SessionID:    spec.AgentID,
		Cwd:          spec.Cwd,
		SystemPrompt: systemPrompt,
		UserMessage:  protocol.UserText(spec.Prompt),
	}

	sink := func(ev protocol.Event) {
		if events == nil {
			return
		}
		switch ev.Type {
		case protocol.EventTextDelta:
			events(spec.AgentID, subagent.Event{Type: subagent.EventText, Text: ev.Text})
		case protocol.EventToolExecStart:
			events(spec.AgentID, subagent.Event{Type: subagent.EventToolStart, ToolName: ev.ToolName})
		case protocol.EventToolExecEnd:
			events(spec.AgentID, subagent.Event{Type: subagent.EventToolEnd, ToolName: ev.ToolName, ToolOutput: ev.ToolOutput})
		case protocol.EventUsage:
			if ev.Use != nil {
				events(spec.AgentID, subagent.Event{Type: subagent.EventUsage, InputTokens: ev.Use.InputTokens, OutputTokens: ev.Use.OutputTokens})
			}
		}
	}

	result, err := engine.RunTurn(ctx, c.Provider, req, sink, nil)
	if events != nil {
		events(spec.AgentID, subagent.Event{Type: subagent.EventDone})
	}
	if err != nil {
		return subagent.TurnResult{}, err
	}
	return subagent.TurnResult{Output: result.FinalText, SessionID: spec.AgentID}, nil
}

const forcedChildInstruction = "You are a sub-agent spawned to handle a single task. " +
	"You may not call spawn_subagent. All mutating tools are disabled; operate read-only " +
	"and report your findings or result as your final message."
