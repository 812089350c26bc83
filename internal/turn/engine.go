package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/turnforge/agentcore/internal/approval"
	"github.com/turnforge/agentcore/internal/budget"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
	"github.com/turnforge/agentcore/internal/toolkit"
)

// ErrTurnAborted is returned when the caller's context is cancelled
// mid-turn (spec §4.8 Cancellation: Esc/Ctrl-C).
var ErrTurnAborted = errors.New("turn: aborted")

// ErrTurnFailed wraps a non-retryable or retry-exhausted provider error,
// carrying the classification the caller (and the persisted
// session_event record) needs.
type ErrTurnFailed struct {
	Kind provider.ErrorKind
	Err  error
}

func (e *ErrTurnFailed) Error() string { return fmt.Sprintf("turn: failed (%s): %v", e.Kind, e.Err) }
func (e *ErrTurnFailed) Unwrap() error { return e.Err }

// Config holds the Engine's fixed wiring: everything that doesn't change
// call to call. Per-call specifics live in Request.
type Config struct {
	Fallback  *FallbackChain
	Registry  *toolkit.Registry
	Executor  *toolkit.Executor
	Scheduler *toolkit.Scheduler
	Gate      *approval.Gate
	Approve   ApprovalWaiter

	Summarizer   budget.Summarizer
	Compaction   budget.Config
	TotalBudget  int // total context window tokens; 0 = read from provider.ModelInfoProvider
	OutputTokens int // reserved output tokens; 0 = read from provider.ModelInfoProvider

	MaxTurns      int // provider round-trips within one Request before giving up (default 20, mirrors the teacher's defaultMaxTurns)
	MaxRetries    int // retryable/rate-limited attempts before giving up (default 5)
	RetryBaseWait time.Duration
}

const (
	defaultMaxTurns      = 20
	defaultMaxRetries    = 5
	defaultRetryBaseWait = 2 * time.Second
)

// Engine runs turns against a Provider, scheduling the tool calls each
// round-trip produces through an internal/toolkit Executor/Scheduler
// gated by internal/approval, compacting history via internal/budget when
// the context budget runs low. One Engine instance is meant to live for a
// whole session; RunTurn is re-entrant only in the sense that it must
// never be called concurrently for the same session (the teacher's Engine
// carries the same single-flight assumption for runLoop).
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine from cfg, filling in documented defaults for
// zero-valued tuning knobs.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBaseWait <= 0 {
		cfg.RetryBaseWait = defaultRetryBaseWait
	}
	if cfg.Compaction.KeepRecent <= 0 {
		cfg.Compaction = budget.DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// RunTurn drives the Prepare/Stream/Tools/Continue-or-Finish loop (spec
// §4.8) until the model stops requesting tools or the turn is cancelled,
// aborted, or fails. events and status may be nil.
func (e *Engine) RunTurn(ctx context.Context, prov provider.Provider, req Request, events EventSink, status StatusSink) (Result, error) {
	history := append(append([]protocol.Message{}, req.History...), req.ReminderMessages...)
	if len(req.UserMessage.Parts) > 0 {
		history = append(history, req.UserMessage)
	}

	var totalUsage protocol.Usage
	var compactions []budget.CompactionResult
	var lastKnownUsedTokens int
	retries := 0

	for attempt := 0; attempt < e.cfg.MaxTurns; attempt++ {
		if err := ctx.Err(); err != nil {
			notifyStatus(status, StatusAborted)
			return Result{History: history, Usage: totalUsage, Status: StatusAborted, Compactions: compactions}, ErrTurnAborted
		}

		notifyStatus(status, StatusPreparing)
		alloc := e.computeBudget(prov, req, history, lastKnownUsedTokens)
		if budget.ShouldCompact(alloc, budget.DefaultCompactThreshold, false) {
			notifyStatus(status, StatusCompacting)
			result, err := budget.Compact(ctx, e.cfg.Summarizer, history, e.cfg.Compaction, req.KnownLargeFiles)
			if err == nil {
				history = result.RetainedMessages
				compactions = append(compactions, result)
				lastKnownUsedTokens = 0
			}
			// Best-effort: an unconfigured or failing summarizer just means
			// the turn proceeds with the full (over-budget) history rather
			// than aborting outright.
		}

		notifyStatus(status, StatusStreaming)
		streamResult, err := e.runOneStream(ctx, prov, req, history, events)
		if err != nil {
			var classified *provider.ClassifiedError
			if !errors.As(err, &classified) {
				classified = provider.Classify(err, 0)
			}

			switch classified.Kind {
			case provider.ErrorContextWindowExceeded:
				notifyStatus(status, StatusCompacting)
				result, compactErr := budget.Compact(ctx, e.cfg.Summarizer, history, e.cfg.Compaction, req.KnownLargeFiles)
				if compactErr == nil {
					history = result.RetainedMessages
					compactions = append(compactions, result)
					lastKnownUsedTokens = 0
					attempt--
					continue
				}
				notifyStatus(status, StatusFailed)
				return Result{History: history, Usage: totalUsage, Status: StatusFailed, Compactions: compactions},
					&ErrTurnFailed{Kind: classified.Kind, Err: err}

			case provider.ErrorRetryable, provider.ErrorRateLimited:
				if retries < e.cfg.MaxRetries {
					retries++
					wait := classified.RetryAfter
					if wait <= 0 {
						wait = e.cfg.RetryBaseWait * time.Duration(retries)
					}
					emit(events, protocol.Event{Type: protocol.EventRetry, RetryAttempt: retries, RetryMaxAttempts: e.cfg.MaxRetries, RetryWaitSecs: wait.Seconds()})
					if waitErr := sleepCtx(ctx, wait); waitErr != nil {
						notifyStatus(status, StatusAborted)
						return Result{History: history, Usage: totalUsage, Status: StatusAborted, Compactions: compactions}, ErrTurnAborted
					}
					attempt--
					continue
				}
				if next, ok := e.advanceFallback(); ok {
					prov = next
					history = sanitizeForProvider(history)
					retries = 0
					attempt--
					continue
				}
				notifyStatus(status, StatusFailed)
				return Result{History: history, Usage: totalUsage, Status: StatusFailed, Compactions: compactions},
					&ErrTurnFailed{Kind: classified.Kind, Err: err}

			case provider.ErrorQuotaExceeded:
				if next, ok := e.advanceFallback(); ok {
					prov = next
					history = sanitizeForProvider(history)
					retries = 0
					attempt--
					continue
				}
				notifyStatus(status, StatusFailed)
				return Result{History: history, Usage: totalUsage, Status: StatusFailed, Compactions: compactions},
					&ErrTurnFailed{Kind: classified.Kind, Err: err}

			default:
				notifyStatus(status, StatusFailed)
				return Result{History: history, Usage: totalUsage, Status: StatusFailed, Compactions: compactions},
					&ErrTurnFailed{Kind: classified.Kind, Err: err}
			}
		}

		totalUsage.Add(streamResult.usage)
		lastKnownUsedTokens = streamResult.usage.InputTokens + streamResult.usage.CachedInputTokens
		retries = 0

		if len(streamResult.text) > 0 || len(streamResult.toolCalls) > 0 {
			history = append(history, buildAssistantMessage(streamResult.text, streamResult.toolCalls))
		}

		if len(streamResult.toolCalls) == 0 {
			notifyStatus(status, StatusFinalizing)
			notifyStatus(status, StatusIdle)
			return Result{History: history, FinalText: streamResult.text, Usage: totalUsage, Status: StatusIdle, Compactions: compactions}, nil
		}

		notifyStatus(status, StatusToolsRunning)
		results, err := e.runTools(ctx, streamResult.toolCalls, req.Cwd, events, status)
		if err != nil {
			notifyStatus(status, StatusAborted)
			return Result{History: history, Usage: totalUsage, Status: StatusAborted, Compactions: compactions}, err
		}
		for _, r := range results {
			history = append(history, toolResultMessage(r))
		}
		// Loop back to step 1 (Prepare) with the updated history, per spec
		// §4.8 step 4: "if any tool produced a result this turn, goto step 1."
	}

	notifyStatus(status, StatusFailed)
	return Result{History: history, Usage: totalUsage, Status: StatusFailed, Compactions: compactions},
		fmt.Errorf("turn: exceeded max turns (%d) without finishing", e.cfg.MaxTurns)
}

func (e *Engine) advanceFallback() (provider.Provider, bool) {
	if e.cfg.Fallback == nil {
		return nil, false
	}
	return e.cfg.Fallback.Advance()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// computeBudget assembles a budget.Allocation for the current history,
// preferring the most recently reported usage (lastKnownUsedTokens) over a
// character-count estimate, mirroring the teacher's lastTotalTokens cache.
func (e *Engine) computeBudget(prov provider.Provider, req Request, history []protocol.Message, lastKnownUsedTokens int) budget.Allocation {
	total := e.cfg.TotalBudget
	output := e.cfg.OutputTokens
	if total <= 0 || output <= 0 {
		if mip, ok := prov.(provider.ModelInfoProvider); ok {
			info := mip.ModelInfo()
			if total <= 0 {
				total = info.ContextWindow
			}
			if output <= 0 {
				output = info.MaxOutputTokens
			}
		}
	}
	if total <= 0 {
		total = 200_000
	}

	systemTokens := budget.EstimateTokens(req.SystemPrompt, budget.DefaultCharsPerToken)
	toolTokens := 0
	for _, t := range req.Tools {
		toolTokens += budget.EstimateTokens(t.Name+t.Description, budget.DefaultCharsPerToken)
	}
	memTokens := 0
	for _, m := range req.MemoryFiles {
		memTokens += budget.EstimateTokens(m, budget.DefaultCharsPerToken)
	}

	used := lastKnownUsedTokens
	if used == 0 {
		for _, m := range history {
			for _, p := range m.Parts {
				used += budget.EstimateTokens(p.Text, budget.DefaultCharsPerToken)
			}
		}
	}

	return budget.Compute(total, output, systemTokens, toolTokens, memTokens, used)
}

// streamOutcome is the accumulated result of draining one provider stream.
type streamOutcome struct {
	text      string
	toolCalls []protocol.ToolCall
	usage     protocol.Usage
}

// runOneStream opens a single provider stream and drains it, forwarding
// every event to sink except EventToolCall (which it also forwards, per
// spec §4.8 step 2) while accumulating text and completed tool calls. Each
// backend is responsible for buffering its own wire-level tool-call
// fragments and only ever emitting a complete protocol.ToolCall via
// event.Tool, so no per-call_id argument buffer is needed at this layer.
func (e *Engine) runOneStream(ctx context.Context, prov provider.Provider, req Request, history []protocol.Message, sink EventSink) (streamOutcome, error) {
	stream, err := prov.Stream(ctx, provider.Request{
		Model:             req.Model,
		System:            req.SystemPrompt,
		Messages:          history,
		Tools:             req.Tools,
		ToolChoice:        protocol.ToolChoice{Mode: protocol.ToolChoiceAuto},
		ParallelToolCalls: req.ParallelToolCalls,
	})
	if err != nil {
		return streamOutcome{}, err
	}
	defer stream.Close()

	var out streamOutcome
	for {
		if err := ctx.Err(); err != nil {
			return streamOutcome{}, err
		}
		event, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return streamOutcome{}, err
		}
		if event.Type == protocol.EventError && event.Err != nil {
			return streamOutcome{}, event.Err
		}
		if event.Type == protocol.EventTextDelta {
			out.text += event.Text
		}
		if event.Type == protocol.EventUsage && event.Use != nil {
			out.usage.Add(*event.Use)
		}
		if event.Type == protocol.EventToolCall && event.Tool != nil {
			out.toolCalls = append(out.toolCalls, *event.Tool)
		}
		emit(sink, event)
		if event.Type == protocol.EventDone {
			return out, nil
		}
	}
}

func buildAssistantMessage(text string, calls []protocol.ToolCall) protocol.Message {
	var parts []protocol.Part
	if text != "" {
		parts = append(parts, protocol.Part{Type: protocol.PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, protocol.Part{Type: protocol.PartToolCall, ToolCall: &call})
	}
	return protocol.Message{Role: protocol.RoleAssistant, Parts: parts}
}

func toolResultMessage(r protocol.ToolResult) protocol.Message {
	result := r
	return protocol.Message{Role: protocol.RoleTool, Parts: []protocol.Part{{Type: protocol.PartToolResult, ToolResult: &result}}}
}
