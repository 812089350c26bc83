package toolkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"testing"

	"github.com/turnforge/agentcore/internal/protocol"
)

// trackingTool records how many instances of itself (and siblings sharing
// the same counters) are inside Execute concurrently, so tests can assert on
// the scheduler's serializability property instead of just its output.
type trackingTool struct {
	BaseTool
	name    string
	safety  ConcurrencySafety
	running *int32
	maxSeen *int32
	hold    time.Duration
}

func (t *trackingTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{Name: t.name, Schema: map[string]interface{}{"type": "object"}}
}
func (t *trackingTool) ConcurrencySafety() ConcurrencySafety { return t.safety }
func (t *trackingTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }
func (t *trackingTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	n := atomic.AddInt32(t.running, 1)
	for {
		max := atomic.LoadInt32(t.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(t.maxSeen, max, n) {
			break
		}
	}
	if t.hold > 0 {
		time.Sleep(t.hold)
	}
	atomic.AddInt32(t.running, -1)
	return TextResult(call, t.name+" done"), nil
}

func newScheduler(t *testing.T, tools []Tool, parallel bool) *Scheduler {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	e := NewExecutor(r, AllowAllChecker{}, Hooks{})
	return NewScheduler(e, parallel)
}

func TestScheduler_ReadOnlyRunRunsConcurrently(t *testing.T) {
	var running, maxSeen int32
	hold := 20 * time.Millisecond
	tools := []Tool{
		&trackingTool{name: "r1", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r2", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r3", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
	}
	s := newScheduler(t, tools, true)

	calls := []protocol.ToolCall{mustCall("r1"), mustCall("r2"), mustCall("r3")}
	result := s.RunBatch(context.Background(), calls, "/tmp")

	if len(result.Pending) != 0 {
		t.Fatalf("unexpected pending approvals: %+v", result.Pending)
	}
	for i, r := range result.Results {
		if r.IsError {
			t.Fatalf("call %d errored: %+v", i, r)
		}
	}
	if atomic.LoadInt32(&maxSeen) < 2 {
		t.Fatalf("expected consecutive ReadOnly calls to overlap, max concurrent observed = %d", maxSeen)
	}
}

func TestScheduler_MutatingCallRunsAlone(t *testing.T) {
	var running, maxSeen int32
	hold := 20 * time.Millisecond
	tools := []Tool{
		&trackingTool{name: "r1", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r2", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "m1", safety: Mutating, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r3", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r4", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
	}
	s := newScheduler(t, tools, true)

	calls := []protocol.ToolCall{
		mustCall("r1"), mustCall("r2"), mustCall("m1"), mustCall("r3"), mustCall("r4"),
	}
	result := s.RunBatch(context.Background(), calls, "/tmp")

	for i, r := range result.Results {
		if r.IsError {
			t.Fatalf("call %d errored: %+v", i, r)
		}
	}
	// The two ReadOnly runs (r1/r2 and r3/r4) may each overlap internally,
	// but m1 must never have observed company: if it ever ran concurrently
	// with anything, running would have exceeded 1 while m1 held the gate.
	// We can't directly isolate m1's observation after the fact, so instead
	// verify order-preservation and that no error occurred; concurrency
	// isolation for the Mutating call is covered by its own test below.
	want := []string{"r1 done", "r2 done", "m1 done", "r3 done", "r4 done"}
	for i, w := range want {
		if result.Results[i].Content != w {
			t.Fatalf("result %d = %q, want %q", i, result.Results[i].Content, w)
		}
	}
}

func TestScheduler_MutatingCallNeverOverlapsAnother(t *testing.T) {
	var running, maxSeen int32
	hold := 20 * time.Millisecond
	tools := []Tool{
		&trackingTool{name: "m1", safety: Mutating, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "m2", safety: Mutating, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "m3", safety: Mutating, running: &running, maxSeen: &maxSeen, hold: hold},
	}
	s := newScheduler(t, tools, true)

	calls := []protocol.ToolCall{mustCall("m1"), mustCall("m2"), mustCall("m3")}
	result := s.RunBatch(context.Background(), calls, "/tmp")

	for i, r := range result.Results {
		if r.IsError {
			t.Fatalf("call %d errored: %+v", i, r)
		}
	}
	if atomic.LoadInt32(&maxSeen) != 1 {
		t.Fatalf("expected Mutating calls to never overlap, max concurrent observed = %d", maxSeen)
	}
}

func TestScheduler_ExclusiveBlocksSurroundingReadOnlyRuns(t *testing.T) {
	var running, maxSeen int32
	hold := 15 * time.Millisecond
	tools := []Tool{
		&trackingTool{name: "r1", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "x1", safety: Exclusive, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r2", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
	}
	s := newScheduler(t, tools, true)

	var wg sync.WaitGroup
	wg.Add(1)
	var result BatchResult
	go func() {
		defer wg.Done()
		result = s.RunBatch(context.Background(), []protocol.ToolCall{
			mustCall("r1"), mustCall("x1"), mustCall("r2"),
		}, "/tmp")
	}()
	wg.Wait()

	for i, r := range result.Results {
		if r.IsError {
			t.Fatalf("call %d errored: %+v", i, r)
		}
	}
	if result.Results[1].Content != "x1 done" {
		t.Fatalf("unexpected exclusive-call result: %+v", result.Results[1])
	}
	if atomic.LoadInt32(&maxSeen) != 1 {
		t.Fatalf("expected the Exclusive call to run with nothing else in flight, max concurrent observed = %d", maxSeen)
	}
}

func TestScheduler_SequentialWhenParallelDisabled(t *testing.T) {
	var running, maxSeen int32
	hold := 15 * time.Millisecond
	tools := []Tool{
		&trackingTool{name: "r1", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
		&trackingTool{name: "r2", safety: ReadOnly, running: &running, maxSeen: &maxSeen, hold: hold},
	}
	s := newScheduler(t, tools, false)

	result := s.RunBatch(context.Background(), []protocol.ToolCall{mustCall("r1"), mustCall("r2")}, "/tmp")
	for i, r := range result.Results {
		if r.IsError {
			t.Fatalf("call %d errored: %+v", i, r)
		}
	}
	if atomic.LoadInt32(&maxSeen) != 1 {
		t.Fatalf("expected no overlap when parallel tool calls are disabled, max concurrent observed = %d", maxSeen)
	}
}

func TestScheduler_PendingApprovalIsReportedNotExecuted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "write", safety: Mutating})
	e := NewExecutor(r, &fixedChecker{decision: PermissionAskUser}, Hooks{})
	s := NewScheduler(e, true)

	result := s.RunBatch(context.Background(), []protocol.ToolCall{mustCall("write")}, "/tmp")
	if len(result.Pending) != 1 {
		t.Fatalf("expected one pending approval, got %d", len(result.Pending))
	}
	if result.Pending[0].Call.Name != "write" {
		t.Fatalf("unexpected pending call: %+v", result.Pending[0])
	}
	if result.Results[0].Content != "" {
		t.Fatalf("expected no result spliced in for a parked call, got %+v", result.Results[0])
	}
}
