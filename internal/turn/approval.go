package turn

import (
	"context"

	"github.com/turnforge/agentcore/internal/approval"
	"github.com/turnforge/agentcore/internal/protocol"
)

// ApprovalDecision is a human's answer to one parked AskUser request.
type ApprovalDecision struct {
	Allow    bool
	Remember approval.RememberScope
}

// ApprovalWaiter asks a human to resolve a tool call the Gate parked as
// AskUser, per spec §4.8's WaitingApproval sub-state. The turn engine
// blocks the specific call (not the whole turn, when other calls in the
// same batch don't need a decision) on this returning. The host surface
// (TUI, web session) supplies the concrete implementation; this package
// only needs the contract, mirroring every other seam interface in this
// module (toolkit.PermissionChecker, subagent.TurnRunner,
// budget.Summarizer).
type ApprovalWaiter func(ctx context.Context, call protocol.ToolCall, requestID string) (ApprovalDecision, error)
