package approval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/turnforge/agentcore/internal/toolkit"
)

func TestGate_NeverPolicyAlwaysAllows(t *testing.T) {
	g := NewGate(Never, SandboxPolicy{Kind: SandboxDangerFullAccess}, nil, nil)
	result, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "bash",
		Arguments:         json.RawMessage(`{"command":"rm -rf /"}`),
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalAlways,
	})
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if result.Decision != toolkit.PermissionAllow {
		t.Fatalf("expected Allow under Never policy, got %v", result.Decision)
	}
}

func TestGate_UnlessTrustedAllowsReadOnly(t *testing.T) {
	g := NewGate(UnlessTrusted, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, nil)
	result, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "grep",
		Arguments:         json.RawMessage(`{"pattern":"x"}`),
		ConcurrencySafety: toolkit.ReadOnly,
		DefaultApproval:   toolkit.ApprovalUnlessTrusted,
	})
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if result.Decision != toolkit.PermissionAllow {
		t.Fatalf("expected Allow for a ReadOnly call under UnlessTrusted, got %v", result.Decision)
	}
}

func TestGate_UnlessTrustedAsksForMutating(t *testing.T) {
	g := NewGate(UnlessTrusted, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, nil)
	result, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "write",
		Arguments:         json.RawMessage(`{"path":"/tmp/x"}`),
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalUnlessTrusted,
	})
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if result.Decision != toolkit.PermissionAskUser {
		t.Fatalf("expected AskUser for a Mutating call under UnlessTrusted, got %v", result.Decision)
	}
	if result.RequestID == "" {
		t.Fatal("expected a non-empty request ID for a parked call")
	}
}

func TestGate_RuleDenyShortCircuits(t *testing.T) {
	rules := RuleSet{{ToolName: "bash", ArgField: "command", ArgGlob: "rm *", Action: RuleDeny, Reason: "destructive"}}
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxWorkspaceWrite}, rules, nil)
	result, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "bash",
		Arguments:         json.RawMessage(`{"command":"rm -rf /tmp/x"}`),
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalOnRequest,
	})
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if result.Decision != toolkit.PermissionDenyOnce {
		t.Fatalf("expected DenyOnce from the matching rule, got %v", result.Decision)
	}
}

func TestGate_RuleAllowShortCircuitsEvenUnderOnRequest(t *testing.T) {
	rules := RuleSet{{ToolName: "bash", Action: RuleAllow}}
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxWorkspaceWrite}, rules, nil)
	result, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "bash",
		Arguments:         json.RawMessage(`{"command":"ls"}`),
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalOnRequest,
	})
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if result.Decision != toolkit.PermissionAllow {
		t.Fatalf("expected the Allow rule to short-circuit OnRequest, got %v", result.Decision)
	}
}

func TestGate_DenyReadPathRejectsBeforeRules(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secrets, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	target := filepath.Join(secrets, "token")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rules := RuleSet{{ToolName: "read", Action: RuleAllow}}
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxReadOnly, DenyReadPaths: []string{secrets}}, rules, nil)
	args, _ := json.Marshal(map[string]string{"path": target})
	_, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "read",
		Arguments:         args,
		ConcurrencySafety: toolkit.ReadOnly,
		DefaultApproval:   toolkit.ApprovalUnlessTrusted,
	})
	if err == nil {
		t.Fatal("expected a deny-read error even though a rule would otherwise allow")
	}
	toolErr, ok := err.(*toolkit.ToolError)
	if !ok || toolErr.Kind != toolkit.ErrAccessDenied {
		t.Fatalf("expected a ToolError{Kind: ErrAccessDenied}, got %v (%T)", err, err)
	}
}

func TestGate_SandboxSetupFailureAbortsCall(t *testing.T) {
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, failingEstablisher{})
	_, err := g.CheckPermission(context.Background(), toolkit.PermissionRequest{
		ToolName:          "bash",
		Arguments:         json.RawMessage(`{"command":"ls"}`),
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalOnRequest,
	})
	toolErr, ok := err.(*toolkit.ToolError)
	if !ok || toolErr.Kind != toolkit.ErrSandboxSetupFailed {
		t.Fatalf("expected a ToolError{Kind: ErrSandboxSetupFailed}, got %v (%T)", err, err)
	}
}

func TestGate_ResolveRemembersApprovalForLaterCalls(t *testing.T) {
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, nil)
	args, _ := json.Marshal(map[string]string{"path": "/tmp/project/file.txt"})
	req := toolkit.PermissionRequest{
		ToolName:          "write",
		Arguments:         args,
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalOnRequest,
	}

	first, err := g.CheckPermission(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if first.Decision != toolkit.PermissionAskUser {
		t.Fatalf("expected the first call to park as AskUser, got %v", first.Decision)
	}

	g.Resolve(first.RequestID, true, RememberPath)

	second, err := g.CheckPermission(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if second.Decision != toolkit.PermissionAllow {
		t.Fatalf("expected the remembered decision to auto-allow the identical call, got %v", second.Decision)
	}
}

func TestGate_ResolveIgnoresDenials(t *testing.T) {
	g := NewGate(OnRequest, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, nil)
	args, _ := json.Marshal(map[string]string{"path": "/tmp/project/file.txt"})
	req := toolkit.PermissionRequest{
		ToolName:          "write",
		Arguments:         args,
		ConcurrencySafety: toolkit.Mutating,
		DefaultApproval:   toolkit.ApprovalOnRequest,
	}

	first, _ := g.CheckPermission(context.Background(), req)
	g.Resolve(first.RequestID, false, RememberPath)

	second, err := g.CheckPermission(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if second.Decision != toolkit.PermissionAskUser {
		t.Fatalf("expected a denial to not be remembered, got %v", second.Decision)
	}
}

type failingEstablisher struct{}

func (failingEstablisher) Establish(ctx context.Context, policy SandboxPolicy) (func(), error) {
	return nil, os.ErrPermission
}
