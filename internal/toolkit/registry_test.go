package toolkit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/turnforge/agentcore/internal/protocol"
)

type stubTool struct {
	BaseTool
	name   string
	safety ConcurrencySafety
}

func (s *stubTool) Spec() protocol.ToolSpec {
	return protocol.ToolSpec{Name: s.name, Schema: map[string]interface{}{"type": "object"}}
}
func (s *stubTool) ConcurrencySafety() ConcurrencySafety { return s.safety }
func (s *stubTool) DefaultApproval() ApprovalDefault     { return ApprovalNever }
func (s *stubTool) Execute(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, error) {
	return TextResult(call, s.name+" ok"), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "read", safety: ReadOnly}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tool, ok := r.Get("read")
	if !ok {
		t.Fatal("expected to find registered tool")
	}
	if tool.Spec().Name != "read" {
		t.Fatalf("got tool named %q", tool.Spec().Name)
	}
}

func TestRegistry_RejectsCollision(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "read", safety: ReadOnly}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&stubTool{name: "read", safety: Mutating}); err == nil {
		t.Fatal("expected collision error on duplicate name")
	}
}

func TestRegistry_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "", safety: ReadOnly}); err == nil {
		t.Fatal("expected error registering tool with empty name")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "grep", safety: ReadOnly})
	r.Replace(&stubTool{name: "grep", safety: Mutating})
	tool, _ := r.Get("grep")
	if tool.ConcurrencySafety() != Mutating {
		t.Fatalf("expected Replace to overwrite the registered tool")
	}
}

func TestRegistry_ListSortedByName(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "write", safety: Mutating})
	_ = r.Register(&stubTool{name: "bash", safety: Mutating})
	_ = r.Register(&stubTool{name: "read", safety: ReadOnly})

	names := r.Names()
	want := []string{"bash", "read", "write"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestRegistry_Specs(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "read", safety: ReadOnly})
	specs := r.Specs()
	if len(specs) != 1 || specs[0].Name != "read" {
		t.Fatalf("unexpected specs: %v", specs)
	}
}

func mustCall(name string) protocol.ToolCall {
	return protocol.ToolCall{ID: "call-1", Name: name, Arguments: json.RawMessage(`{}`)}
}
