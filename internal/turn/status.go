// Package turn implements the Turn Engine (spec §4.8): the orchestrator
// that drives one agent conversation step by assembling a request,
// streaming a provider's response, scheduling the tool calls it contains,
// and deciding whether to continue or finalize — tying together
// internal/protocol, internal/provider, internal/toolkit,
// internal/approval, internal/budget and internal/subagent. Persisting a
// turn is left to the caller, which gets the updated history in Result.
//
// Grounded on the teacher's internal/llm.Engine.runLoop: the per-attempt
// loop structure (stream, collect tool calls, decide continue-or-finish,
// reactive compaction on context overflow) and its maxTurns/retry shape
// are kept, without its persistence hooks; the tool execution path
// is replaced end to end with internal/toolkit's 5-stage Executor and
// internal/approval's Gate, neither of which the teacher has (the teacher
// runs its own ToolRegistry with ad hoc permission prompts inline).
package turn

// AgentStatus is the turn-level state machine from spec §4.8:
//
//	Idle -> Preparing -> Streaming -> (ToolsRunning <-> Streaming) -> Finalizing -> (Idle | Failed)
//
// A Compacting transition may intercept before Streaming, and
// WaitingApproval is a sub-state of ToolsRunning scoped to specific calls.
type AgentStatus string

const (
	StatusIdle            AgentStatus = "idle"
	StatusPreparing       AgentStatus = "preparing"
	StatusCompacting      AgentStatus = "compacting"
	StatusStreaming       AgentStatus = "streaming"
	StatusToolsRunning    AgentStatus = "tools_running"
	StatusWaitingApproval AgentStatus = "waiting_approval"
	StatusFinalizing      AgentStatus = "finalizing"
	StatusAborted         AgentStatus = "aborted"
	StatusFailed          AgentStatus = "failed"
)

// StatusSink broadcasts the latest AgentStatus. Per spec §5's "the
// broadcast AgentStatus channel holds the latest value; late subscribers
// see current state," a sink is expected to be backed by something like a
// single-slot value, not an unbounded queue; the turn engine only ever
// calls it with the newest status, never batches.
type StatusSink func(AgentStatus)

func notifyStatus(sink StatusSink, status AgentStatus) {
	if sink != nil {
		sink(status)
	}
}
