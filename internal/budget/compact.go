package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/turnforge/agentcore/internal/protocol"
)

// ErrSummaryRequestTooLarge is what a Summarizer should wrap and return when
// the summarization request itself overflowed the context window (the turn
// engine maps a provider.ErrorContextWindowExceeded from that request onto
// this), so Compact knows to retry with a reduced K rather than treat it as
// a terminal failure.
var ErrSummaryRequestTooLarge = errors.New("budget: summary request exceeded context window")

// ErrCompactionFailed is returned once the single K-reduction retry also
// fails, per spec §4.5: "compaction is never recursive ... reduces K and
// retries once, then fails with CompactionFailed."
var ErrCompactionFailed = errors.New("budget: compaction failed")

// LargeFileRef is one entry of the CompactedLargeFiles metadata spec §4.5
// requires: a file read during the conversation whose size exceeds the
// configured inclusion threshold, surfaced to the next turn via the
// compact_file_reference reminder.
type LargeFileRef struct {
	Path      string
	LineCount int
	ByteSize  int
}

// PreCompactHook contributes additional instructions to the summarization
// prompt, per spec §4.5's "custom instructions from any PreCompact hooks."
type PreCompactHook func() string

// Config configures one compaction turn.
type Config struct {
	// KeepRecent (K) is the number of most-recent user/tool turns preserved
	// verbatim after compaction.
	KeepRecent int
	// LargeFileThresholdBytes is the inclusion threshold for
	// CompactedLargeFiles: files at or above this size are reported rather
	// than re-included.
	LargeFileThresholdBytes int
	Hooks                   []PreCompactHook
}

func DefaultConfig() Config {
	return Config{KeepRecent: 10, LargeFileThresholdBytes: 4096}
}

// SummaryRequest is what Compact hands to a Summarizer for the actual model
// round-trip.
type SummaryRequest struct {
	Prompt string
}

// Summarizer issues the summarization request. The turn engine supplies the
// concrete implementation (a reduced-output-reservation call through the
// active provider); this package has no dependency on the provider package,
// mirroring every other seam interface in this module (toolkit.PermissionChecker,
// subagent.TurnRunner).
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// CompactionResult is what a successful compaction turn produced.
type CompactionResult struct {
	SummaryMessage       protocol.Message
	RetainedMessages     []protocol.Message
	CompactedLargeFiles  []LargeFileRef
	K                    int
}

// turn groups one user query (or tool-result continuation) with everything
// that follows it up to the next user query, so compaction never splits a
// tool call from its result or a user question from its answer.
type turn struct {
	messages []protocol.Message
}

// Compact runs one compaction turn per spec §4.5 steps 2-4: build a
// structured summarization request over the history being dropped, issue it,
// and splice the resulting summary ahead of the retained K most-recent
// turns. knownFiles is the set of files read anywhere in the original
// history (tracked by the turn engine's read-tool bookkeeping); any at or
// above cfg.LargeFileThresholdBytes are carried forward as
// CompactedLargeFiles instead of being silently dropped.
//
// Never recursive: if the summarization request itself overflows the
// context window (Summarizer returns a wrapped ErrSummaryRequestTooLarge),
// Compact halves K and retries exactly once before giving up with
// ErrCompactionFailed.
func Compact(ctx context.Context, summarizer Summarizer, messages []protocol.Message, cfg Config, knownFiles []LargeFileRef) (CompactionResult, error) {
	if summarizer == nil {
		return CompactionResult{}, errors.New("budget: no summarizer configured")
	}
	k := cfg.KeepRecent
	if k < 0 {
		k = 0
	}

	result, err := attemptCompaction(ctx, summarizer, messages, k, cfg, knownFiles)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrSummaryRequestTooLarge) {
		return CompactionResult{}, err
	}

	reducedK := k / 2
	result, err = attemptCompaction(ctx, summarizer, messages, reducedK, cfg, knownFiles)
	if err != nil {
		return CompactionResult{}, fmt.Errorf("%w: %v", ErrCompactionFailed, err)
	}
	return result, nil
}

func attemptCompaction(ctx context.Context, summarizer Summarizer, messages []protocol.Message, k int, cfg Config, knownFiles []LargeFileRef) (CompactionResult, error) {
	systemEnd := 0
	for i, m := range messages {
		if m.Role != protocol.RoleSystem {
			break
		}
		systemEnd = i + 1
	}
	if systemEnd >= len(messages) {
		return CompactionResult{RetainedMessages: messages, K: k}, nil
	}

	turns := parseTurns(messages[systemEnd:])
	if len(turns) <= k {
		return CompactionResult{RetainedMessages: messages, K: k}, nil
	}

	splitIdx := len(turns) - k
	if splitIdx <= 0 {
		return CompactionResult{RetainedMessages: messages, K: k}, nil
	}
	toCompress, toKeep := turns[:splitIdx], turns[splitIdx:]

	var transcript strings.Builder
	for _, t := range toCompress {
		for _, m := range t.messages {
			transcript.WriteString(formatMessage(m))
			transcript.WriteByte('\n')
		}
	}

	prompt := buildSummaryPrompt(transcript.String(), cfg.Hooks)
	summaryText, err := summarizer.Summarize(ctx, SummaryRequest{Prompt: prompt})
	if err != nil {
		return CompactionResult{}, err
	}

	summaryMsg := protocol.SystemText("[Conversation Summary]\n" + strings.TrimSpace(summaryText))

	keepMsgs := make([]protocol.Message, 0, len(toKeep)*2)
	for _, t := range toKeep {
		keepMsgs = append(keepMsgs, t.messages...)
	}

	retained := make([]protocol.Message, 0, systemEnd+1+len(keepMsgs))
	retained = append(retained, messages[:systemEnd]...)
	retained = append(retained, summaryMsg)
	retained = append(retained, keepMsgs...)

	return CompactionResult{
		SummaryMessage:      summaryMsg,
		RetainedMessages:    retained,
		CompactedLargeFiles: selectLargeFiles(knownFiles, cfg.LargeFileThresholdBytes),
		K:                   k,
	}, nil
}

// parseTurns groups messages into logical turns: a turn starts with a
// RoleUser message and extends through every following message (assistant
// text/tool calls, RoleTool results) until the next RoleUser message.
func parseTurns(msgs []protocol.Message) []turn {
	var turns []turn
	var current turn

	for _, m := range msgs {
		if m.Role == protocol.RoleUser {
			if len(current.messages) > 0 {
				turns = append(turns, current)
			}
			current = turn{messages: []protocol.Message{m}}
			continue
		}
		current.messages = append(current.messages, m)
	}
	if len(current.messages) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func formatMessage(m protocol.Message) string {
	var sb strings.Builder
	sb.WriteString(string(m.Role))
	sb.WriteString(": ")
	for _, p := range m.Parts {
		switch p.Type {
		case protocol.PartText:
			sb.WriteString(p.Text)
		case protocol.PartToolCall:
			if p.ToolCall != nil {
				fmt.Fprintf(&sb, "[Tool Call: %s]", p.ToolCall.Name)
			}
		case protocol.PartToolResult:
			if p.ToolResult != nil {
				fmt.Fprintf(&sb, "[Tool Result: %s]", p.ToolResult.Name)
			}
		case protocol.PartThinking:
			// Thinking traces are provider-internal reasoning, not part of
			// the human-facing narrative a summary needs to preserve.
		}
	}
	return sb.String()
}

func selectLargeFiles(knownFiles []LargeFileRef, thresholdBytes int) []LargeFileRef {
	if thresholdBytes <= 0 {
		thresholdBytes = DefaultConfig().LargeFileThresholdBytes
	}
	var out []LargeFileRef
	for _, f := range knownFiles {
		if f.ByteSize >= thresholdBytes {
			out = append(out, f)
		}
	}
	return out
}

const summaryPromptTemplate = `Your task is to create a structured summary of the conversation so far so that work can continue without losing context. Be thorough: a reader picking this up cold should be able to continue the task from your summary alone.

Produce exactly these nine sections, in order:

1. Primary Request and Intent: the user's explicit requests and goals, stated precisely.
2. Key Concepts: the technical concepts, libraries, and architecture discussed.
3. Files and Code Sections: specific files, functions, or code blocks read, created, or modified, and why each mattered.
4. Errors and Fixes: problems encountered and how they were resolved (or left open).
5. Problem Solving: non-obvious decisions made and the reasoning behind them.
6. All User Messages: every explicit instruction the user gave, in order.
7. Pending Tasks: work requested but not yet completed.
8. Current Work: precisely what was being done immediately before this summary, with relevant excerpts.
9. Optional Next Step: the next action to take, directly tied to the current work and the user's explicit requests.
%s
CONVERSATION:
%s`

func buildSummaryPrompt(conversation string, hooks []PreCompactHook) string {
	var custom strings.Builder
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if instr := h(); instr != "" {
			custom.WriteString("\nAdditional instruction: ")
			custom.WriteString(instr)
		}
	}
	return fmt.Sprintf(summaryPromptTemplate, custom.String(), conversation)
}
