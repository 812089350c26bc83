package toolkit

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/turnforge/agentcore/internal/protocol"
)

// Scheduler runs a batch of tool calls streamed in a single model turn,
// enforcing the serializability property from spec §4.3: maximal runs of
// consecutive ReadOnly calls execute concurrently on a shared pool (only
// when the model supports parallel tool calls); any Mutating or Exclusive
// call runs alone, blocking until the preceding run fully drains and
// blocking everything after it until its own Cleanup completes. Results are
// returned in the original call order regardless of completion order.
type Scheduler struct {
	executor          *Executor
	parallelToolCalls bool
}

func NewScheduler(executor *Executor, parallelToolCalls bool) *Scheduler {
	return &Scheduler{executor: executor, parallelToolCalls: parallelToolCalls}
}

// PendingApproval is returned (via the batch result's Pending slice) for any
// call whose CheckPermission stage asked for human input; the turn engine
// parks the turn until a decision resolves it, then resumes scheduling with
// RunOne for just that call.
type PendingApproval struct {
	Index     int
	RequestID string
	Call      protocol.ToolCall
}

// BatchResult is the outcome of scheduling a turn's tool calls.
type BatchResult struct {
	Results []protocol.ToolResult // same length/order as the input calls
	Meta    []ExecutionMetadata
	Pending []PendingApproval
}

// safetyOf resolves a call's concurrency class by looking up its tool in
// the registry; an unknown tool is treated as Exclusive so a bad call can't
// accidentally run in parallel with something it might race.
func (s *Scheduler) safetyOf(name string) ConcurrencySafety {
	if tool, ok := s.executor.registry.Get(name); ok {
		return tool.ConcurrencySafety()
	}
	return Exclusive
}

// RunBatch schedules and executes calls, grouping maximal consecutive runs
// of ReadOnly calls to run concurrently and running every Mutating/Exclusive
// call alone in turn order.
func (s *Scheduler) RunBatch(ctx context.Context, calls []protocol.ToolCall, cwd string) BatchResult {
	out := BatchResult{
		Results: make([]protocol.ToolResult, len(calls)),
		Meta:    make([]ExecutionMetadata, len(calls)),
	}

	i := 0
	for i < len(calls) {
		safety := s.safetyOf(calls[i].Name)
		if safety == ReadOnly && s.parallelToolCalls {
			j := i
			for j < len(calls) && s.safetyOf(calls[j].Name) == ReadOnly {
				j++
			}
			s.runParallel(ctx, calls[i:j], cwd, i, &out)
			i = j
			continue
		}

		// Mutating/Exclusive (or ReadOnly without parallel support): run
		// this one call alone before considering the next.
		s.runOne(ctx, calls[i], cwd, i, &out, nil)
		i++
	}

	return out
}

// runParallel fans a maximal ReadOnly run out across goroutines via
// errgroup; every call gets its own slot in out.Results/out.Meta so the
// workers never contend with each other there, and pendingMu serializes
// the rarer case of concurrent AskUser parks. A ReadOnly tool's own error
// never aborts its siblings, so the group's returned error is always nil
// and deliberately discarded — Wait is used only to block for completion.
func (s *Scheduler) runParallel(ctx context.Context, calls []protocol.ToolCall, cwd string, baseIndex int, out *BatchResult) {
	var pendingMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for k, call := range calls {
		idx, c := baseIndex+k, call
		g.Go(func() error {
			s.runOne(gctx, c, cwd, idx, out, &pendingMu)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, call protocol.ToolCall, cwd string, index int, out *BatchResult, pendingMu *sync.Mutex) {
	result, meta, err := s.executor.Run(ctx, call, cwd)
	if askErr, ok := err.(*AskUserError); ok {
		if pendingMu != nil {
			pendingMu.Lock()
			defer pendingMu.Unlock()
		}
		out.Pending = append(out.Pending, PendingApproval{Index: index, RequestID: askErr.RequestID, Call: call})
		return
	}
	out.Results[index] = result
	out.Meta[index] = meta
}

// RunOne re-executes a single previously-parked call, used once an AskUser
// approval resolves. The caller is responsible for splicing the result back
// into the turn's tool-result history at Index.
func (s *Scheduler) RunOne(ctx context.Context, call protocol.ToolCall, cwd string) (protocol.ToolResult, ExecutionMetadata, error) {
	return s.executor.Run(ctx, call, cwd)
}
