package turn

import (
	"context"
	"fmt"

	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/toolkit"
)

// runTools schedules calls through the Scheduler and resolves any
// AskUser-parked calls via ApprovalWaiter before returning, so the caller
// always gets back one ToolResult per call, in the same order as calls —
// satisfying spec §4.8's ordering guarantee that ToolResult for call X is
// written strictly after ToolUse for X, in the provider's emission order.
func (e *Engine) runTools(ctx context.Context, calls []protocol.ToolCall, cwd string, events EventSink, status StatusSink) ([]protocol.ToolResult, error) {
	for _, c := range calls {
		emit(events, protocol.Event{Type: protocol.EventToolExecStart, ToolCallID: c.ID, ToolName: c.Name})
	}

	batch := e.cfg.Scheduler.RunBatch(ctx, calls, cwd)
	results := batch.Results

	for _, pending := range batch.Pending {
		notifyStatus(status, StatusWaitingApproval)
		result, err := e.resolvePending(ctx, pending, cwd)
		if err != nil {
			return nil, err
		}
		results[pending.Index] = result
	}
	notifyStatus(status, StatusToolsRunning)

	for i, c := range calls {
		emit(events, protocol.Event{
			Type:        protocol.EventToolExecEnd,
			ToolCallID:  c.ID,
			ToolName:    c.Name,
			ToolOutput:  results[i].Content,
			ToolSuccess: !results[i].IsError,
		})
	}
	return results, nil
}

func (e *Engine) resolvePending(ctx context.Context, pending toolkit.PendingApproval, cwd string) (protocol.ToolResult, error) {
	if e.cfg.Approve == nil || e.cfg.Gate == nil {
		return toolkit.ErrorResult(pending.Call, toolkit.NewToolErrorf(toolkit.ErrPermissionDenied,
			"no approval surface configured to resolve request %s", pending.RequestID)), nil
	}

	decision, err := e.cfg.Approve(ctx, pending.Call, pending.RequestID)
	if err != nil {
		return protocol.ToolResult{}, fmt.Errorf("turn: resolving approval %s: %w", pending.RequestID, err)
	}
	e.cfg.Gate.Resolve(pending.RequestID, decision.Allow, decision.Remember)
	if !decision.Allow {
		return toolkit.ErrorResult(pending.Call, toolkit.NewToolErrorf(toolkit.ErrPermissionDenied, "denied by user")), nil
	}

	result, _, runErr := e.cfg.Scheduler.RunOne(ctx, pending.Call, cwd)
	if runErr != nil {
		return toolkit.ErrorResult(pending.Call, toolkit.NewToolErrorf(toolkit.ErrPermissionDenied, "%v", runErr)), nil
	}
	return result, nil
}
