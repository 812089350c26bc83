package approval

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/turnforge/agentcore/internal/toolkit"
)

// TestApprovalNeverPolicyProperty verifies the universal property
// "ApprovalPolicy = Never => no AskUser request is ever emitted": for any
// tool name, concurrency safety, and tool-declared default approval, a
// Gate configured with the session-wide Never policy must never return
// PermissionAskUser. Grounded on the gopter ForAll/TestingRun pattern in
// goadesign-goa-ai's runtime/a2a/retry/retry_test.go.
func TestApprovalNeverPolicyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	toolNameGen := gen.OneConstOf("read", "write", "edit", "bash", "grep", "glob", "view_image", "apply_patch", "mystery_tool")
	safetyGen := gen.IntRange(0, 2).Map(func(n int) toolkit.ConcurrencySafety { return toolkit.ConcurrencySafety(n) })
	defaultApprovalGen := gen.IntRange(0, 3).Map(func(n int) toolkit.ApprovalDefault { return toolkit.ApprovalDefault(n) })

	properties.Property("Never policy always allows, never parks an AskUser request", prop.ForAll(
		func(toolName string, safety toolkit.ConcurrencySafety, defaultApproval toolkit.ApprovalDefault) bool {
			gate := NewGate(Never, SandboxPolicy{Kind: SandboxWorkspaceWrite}, nil, NoopEstablisher{})
			result, err := gate.CheckPermission(context.Background(), toolkit.PermissionRequest{
				ToolName:          toolName,
				Arguments:         []byte(`{}`),
				ConcurrencySafety: safety,
				DefaultApproval:   defaultApproval,
			})
			if err != nil {
				return false
			}
			return result.Decision != toolkit.PermissionAskUser
		},
		toolNameGen,
		safetyGen,
		defaultApprovalGen,
	))

	properties.TestingRun(t)
}
