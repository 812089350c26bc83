package turn

import (
	"github.com/turnforge/agentcore/internal/budget"
	"github.com/turnforge/agentcore/internal/protocol"
)

// Request is what the engine needs to run a turn starting from a (possibly
// empty) history, per spec §4.8 step 1 ("assemble request: sanitized
// history + system prompt + tool definitions + memory files +
// system-reminder attachments").
type Request struct {
	SessionID    string
	Cwd          string
	Model        string
	SystemPrompt string

	// History is the conversation so far, not including UserMessage.
	History []protocol.Message
	// UserMessage is the new input driving this turn. Empty Parts means
	// "continue without new user input" (used when resuming a turn whose
	// stream produced tool calls but no user message followed).
	UserMessage protocol.Message

	Tools             []protocol.ToolSpec
	ParallelToolCalls bool

	// MemoryFiles are the raw contents of always-attached memory/rules
	// files (e.g. AGENTS.md), counted against the context budget
	// alongside the system prompt and tool definitions.
	MemoryFiles []string

	// KnownLargeFiles tracks every file read during the session so far,
	// for budget.Compact's CompactedLargeFiles bookkeeping.
	KnownLargeFiles []budget.LargeFileRef

	// ReminderMessages are C9 system-reminder attachments, already rendered
	// and ready to inject as additional user-role messages ahead of the
	// model call.
	ReminderMessages []protocol.Message
}

// Result is what a completed (or aborted/failed) turn produced.
type Result struct {
	// History is the full updated conversation: Request.History plus every
	// message (user, assistant, tool) generated resolving this turn.
	History []protocol.Message
	// FinalText is the assistant's last text response (empty on abort/failure).
	FinalText string
	Usage     protocol.Usage
	Status    AgentStatus
	// Compactions records every compaction that ran while resolving this turn.
	Compactions []budget.CompactionResult
}

// EventSink streams protocol-level events out of a running turn (text
// deltas, tool call/result notifications, usage, retries) for a UI or log
// to render live. Unlike StatusSink, every event matters — callers that
// need to render a transcript must not drop any.
type EventSink func(protocol.Event)

func emit(sink EventSink, ev protocol.Event) {
	if sink != nil {
		sink(ev)
	}
}
