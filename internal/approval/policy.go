// Package approval implements the Approval & Sandbox Gate: per-call
// approval policy evaluation, deny-read path enforcement, and the sandbox
// contract that Mutating/Exclusive subprocess-launching tools run under.
// Grounded on the teacher's internal/tools ApprovalManager/ApprovalCache/
// DirCache/ToolPermissions, generalized from the teacher's single
// TUI-prompt-driven flow to the rule-evaluator-first procedure the
// specification describes.
package approval

// ApprovalPolicy controls whether and when a tool call must be confirmed
// by a human before it executes.
type ApprovalPolicy int

const (
	// Never auto-allows every call; no AskUser request is ever emitted.
	Never ApprovalPolicy = iota
	// OnRequest asks for every call that no rule resolves.
	OnRequest
	// UnlessTrusted auto-allows ReadOnly calls that no rule resolves, and
	// asks for everything else.
	UnlessTrusted
	// Always asks for every call that no rule or remembered approval
	// resolves, ReadOnly calls included (used for the most cautious
	// operator configuration).
	Always
)

func (p ApprovalPolicy) String() string {
	switch p {
	case Never:
		return "never"
	case OnRequest:
		return "on_request"
	case UnlessTrusted:
		return "unless_trusted"
	case Always:
		return "always"
	default:
		return "unknown"
	}
}

// SandboxKind selects the write/network posture a subprocess-launching
// tool call runs under.
type SandboxKind int

const (
	SandboxReadOnly SandboxKind = iota
	SandboxWorkspaceWrite
	SandboxDangerFullAccess
)

func (k SandboxKind) String() string {
	switch k {
	case SandboxReadOnly:
		return "read_only"
	case SandboxWorkspaceWrite:
		return "workspace_write"
	case SandboxDangerFullAccess:
		return "danger_full_access"
	default:
		return "unknown"
	}
}

// SandboxPolicy is the resolved sandbox configuration for a session or
// sub-agent. DenyReadPaths only applies meaningfully under SandboxReadOnly,
// but is kept alongside Kind so a single value describes the full posture.
type SandboxPolicy struct {
	Kind          SandboxKind
	DenyReadPaths []string
}
