// Package subagent implements the Sub-Agent Coordinator: it turns a
// spawn_subagent tool call into a nested conversation whose spec carries
// forced read-only constraints (which constraints take effect is up to the
// TurnRunner),
// tracks it through the Ctrl-B background transition, and tears every
// outstanding sub-agent down when its parent session ends.
//
// Grounded on the teacher's SpawnAgentTool/SpawnAgentRunner pair
// (internal/tools/spawn_agent.go): the semaphore-bounded concurrency and
// depth/allowlist checks stay in toolkit.SpawnSubAgentTool (the tool-facing
// half); this package is the runner behind it, generalized from the
// teacher's single synchronous RunAgent/RunAgentWithCallback pair to also
// cover background detachment and parent-linked cancellation, neither of
// which the teacher's CLI-only agent needed.
package subagent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/turnforge/agentcore/internal/approval"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/toolkit"
)

// forcedDeveloperInstruction is injected as a developer/system message ahead
// of every sub-agent's prompt, per spec §4.6: a sub-agent may not itself
// spawn further sub-agents and runs read-only regardless of its persona.
const forcedDeveloperInstruction = "You are a sub-agent spawned to handle a single task. " +
	"You may not call spawn_subagent. All mutating tools are disabled; operate read-only " +
	"and report your findings or result as your final message."

// ChildSessionSpec describes the nested conversation a TurnRunner must
// execute. Every field reflects one of spec §4.6's forced constraints.
type ChildSessionSpec struct {
	AgentID         string
	AgentName       string
	Prompt          string
	Cwd             string
	Depth           int
	ParentSessionID string

	ForcedDeveloperNote string
	SandboxPolicy       approval.SandboxPolicy
	ApprovalPolicy      approval.ApprovalPolicy
}

// TurnResult is what a completed nested conversation produced.
type TurnResult struct {
	Output    string
	SessionID string
}

// EventCallback bubbles progress out of a running sub-agent, mirroring the
// teacher's SubagentEventCallback but carrying protocol.DiffData so it has
// no dependency on the teacher's llm package.
type EventCallback func(agentID string, event Event)

// EventType identifies the kind of progress event a sub-agent emits.
type EventType string

const (
	EventInit      EventType = "init"
	EventText      EventType = "text"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventPhase     EventType = "phase"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
)

// Event is one progress notification from a running sub-agent.
type Event struct {
	Type EventType

	Text string

	ToolName   string
	ToolInfo   string
	ToolOutput string
	Diffs      []protocol.DiffData
	Success    bool

	Phase string

	InputTokens  int
	OutputTokens int

	Provider string
	Model    string
}

// TurnRunner executes one nested conversation to completion. Defined here
// (rather than imported from the turn engine) so this package carries no
// dependency on it, mirroring toolkit.SubAgentRunner and toolkit.PermissionChecker:
// the turn engine supplies the concrete implementation (turn.ChildRunner).
type TurnRunner interface {
	RunTurn(ctx context.Context, spec ChildSessionSpec, events EventCallback) (TurnResult, error)
}

// SpawnRequest is everything Coordinator.Spawn needs beyond the forced
// constraints it fills in itself.
type SpawnRequest struct {
	AgentName      string
	Prompt         string
	Cwd            string
	Depth          int
	Backgroundable bool
	Events         EventCallback

	// AgentID overrides the generated ID; leave empty to let the
	// coordinator assign one.
	AgentID string
}

// SpawnOutcome is what Coordinator.Spawn returns. Backgrounded is true only
// when the run was asked to detach (via Background) before it completed;
// the caller must then poll TaskOutput for the eventual result.
type SpawnOutcome struct {
	AgentID      string
	Completed    bool
	Backgrounded bool
	Result       TurnResult
}

// ProcessReaper terminates any detached subprocesses a sub-agent may have
// left running (spec §4.6's "detached unified-exec processes"). Satisfied
// by *toolkit.ShellJobs.
type ProcessReaper interface {
	KillAll()
}

type backgroundEntry struct {
	signal chan struct{}
	once   sync.Once
}

type completedOutcome struct {
	result TurnResult
	err    error
}

// Coordinator is the concrete toolkit.SubAgentRunner: it builds the forced
// child session spec, runs it via a TurnRunner, and tracks the process-wide
// agent_id -> background-signal registry plus parent-linked cancellation
// described in spec §4.6.
type Coordinator struct {
	runner          TurnRunner
	parentSessionID string
	reapers         []ProcessReaper

	seq uint64

	mu         sync.Mutex
	cancels    map[string]context.CancelFunc
	background map[string]*backgroundEntry
	completed  map[string]completedOutcome
}

// NewCoordinator builds a Coordinator. parentSessionID is stamped onto every
// child spec so the turn engine can record lineage in the rollout log.
func NewCoordinator(runner TurnRunner, parentSessionID string, reapers ...ProcessReaper) *Coordinator {
	return &Coordinator{
		runner:          runner,
		parentSessionID: parentSessionID,
		reapers:         reapers,
		cancels:         make(map[string]context.CancelFunc),
		background:      make(map[string]*backgroundEntry),
		completed:       make(map[string]completedOutcome),
	}
}

func (c *Coordinator) newAgentID() string {
	n := atomic.AddUint64(&c.seq, 1)
	if c.parentSessionID != "" {
		return fmt.Sprintf("%s-sub-%d", c.parentSessionID, n)
	}
	return fmt.Sprintf("sub-%d", n)
}

func (c *Coordinator) buildSpec(req SpawnRequest, agentID string) ChildSessionSpec {
	return ChildSessionSpec{
		AgentID:             agentID,
		AgentName:           req.AgentName,
		Prompt:              req.Prompt,
		Cwd:                 req.Cwd,
		Depth:               req.Depth,
		ParentSessionID:     c.parentSessionID,
		ForcedDeveloperNote: forcedDeveloperInstruction,
		SandboxPolicy:       approval.SandboxPolicy{Kind: approval.SandboxReadOnly},
		ApprovalPolicy:      approval.Never,
	}
}

// RunSubAgent implements toolkit.SubAgentRunner: it always runs the child to
// completion (or ctx cancellation), never detaching it to the background.
// The spawn_subagent tool uses this path; Ctrl-B-style background transition
// is reached through Spawn directly, once the turn engine wires a
// backgrounding control into its own tool surface.
func (c *Coordinator) RunSubAgent(ctx context.Context, agentName, prompt string, depth int) (toolkit.SubAgentRunResult, error) {
	outcome, err := c.Spawn(ctx, SpawnRequest{AgentName: agentName, Prompt: prompt, Depth: depth})
	if err != nil {
		return toolkit.SubAgentRunResult{}, err
	}
	return toolkit.SubAgentRunResult{Output: outcome.Result.Output, SessionID: outcome.Result.SessionID}, nil
}

type runResult struct {
	result TurnResult
	err    error
}

// Spawn runs a nested conversation. When req.Backgroundable is false (the
// common case), it blocks until the child finishes or ctx is cancelled. When
// true, it also races completion against a later Background(agentID) call;
// if the signal fires first it returns immediately with Backgrounded=true
// and the caller must poll TaskOutput(agentID) for the eventual result.
func (c *Coordinator) Spawn(ctx context.Context, req SpawnRequest) (SpawnOutcome, error) {
	agentID := req.AgentID
	if agentID == "" {
		agentID = c.newAgentID()
	}
	spec := c.buildSpec(req, agentID)

	childCtx, cancel := context.WithCancel(ctx)
	c.registerCancel(agentID, cancel)

	done := make(chan runResult, 1)
	go func() {
		result, err := c.runner.RunTurn(childCtx, spec, req.Events)
		done <- runResult{result, err}
	}()

	if !req.Backgroundable {
		defer c.unregisterCancel(agentID)
		defer cancel()
		select {
		case r := <-done:
			return SpawnOutcome{AgentID: agentID, Completed: true, Result: r.result}, r.err
		case <-ctx.Done():
			return SpawnOutcome{AgentID: agentID}, ctx.Err()
		}
	}

	signal := c.registerBackground(agentID)
	select {
	case r := <-done:
		c.unregisterBackground(agentID)
		c.unregisterCancel(agentID)
		cancel()
		return SpawnOutcome{AgentID: agentID, Completed: true, Result: r.result}, r.err
	case <-signal:
		go func() {
			r := <-done
			c.storeCompletion(agentID, r.result, r.err)
			c.unregisterBackground(agentID)
			c.unregisterCancel(agentID)
			cancel()
		}()
		return SpawnOutcome{AgentID: agentID, Backgrounded: true}, nil
	case <-ctx.Done():
		c.unregisterBackground(agentID)
		c.unregisterCancel(agentID)
		cancel()
		return SpawnOutcome{AgentID: agentID}, ctx.Err()
	}
}

// Background requests that a currently-running backgroundable sub-agent
// detach (the Ctrl-B transition). Returns false if agentID names no
// currently-running backgroundable sub-agent.
func (c *Coordinator) Background(agentID string) bool {
	c.mu.Lock()
	entry, ok := c.background[agentID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	entry.once.Do(func() { close(entry.signal) })
	return true
}

// TaskOutput polls a backgrounded sub-agent. ready is false while it is
// still running; once ready, result/err are the eventual RunTurn outcome.
func (c *Coordinator) TaskOutput(agentID string) (result TurnResult, ready bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.completed[agentID]
	if !ok {
		return TurnResult{}, false, nil
	}
	return out.result, true, out.err
}

// Shutdown fires every registered background signal, cancels every
// outstanding child's context, and asks each configured ProcessReaper to
// terminate detached subprocesses, per spec §4.6's parent-session-end
// cleanup requirement.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for id, entry := range c.background {
		entry.once.Do(func() { close(entry.signal) })
		delete(c.background, id)
	}
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()

	for _, r := range c.reapers {
		r.KillAll()
	}
}

func (c *Coordinator) registerCancel(agentID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[agentID] = cancel
}

func (c *Coordinator) unregisterCancel(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, agentID)
}

func (c *Coordinator) registerBackground(agentID string) <-chan struct{} {
	entry := &backgroundEntry{signal: make(chan struct{})}
	c.mu.Lock()
	c.background[agentID] = entry
	c.mu.Unlock()
	return entry.signal
}

func (c *Coordinator) unregisterBackground(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.background, agentID)
}

func (c *Coordinator) storeCompletion(agentID string, result TurnResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[agentID] = completedOutcome{result: result, err: err}
}
