package approval

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/turnforge/agentcore/internal/toolkit"
)

// pathBearingTools maps a tool name to the argument field holding a
// filesystem path, plus whether that path is a search root (grep/glob),
// which per spec §4.4 additionally fails on deny-path containment in
// either direction.
var pathBearingTools = map[string]struct {
	field        string
	isSearchRoot bool
}{
	"read":       {field: "path"},
	"write":      {field: "path"},
	"edit":       {field: "path"},
	"view_image": {field: "path"},
	"grep":       {field: "path", isSearchRoot: true},
	"glob":       {field: "path", isSearchRoot: true},
}

// sandboxedTools names the Mutating/Exclusive tools that launch
// subprocesses and must therefore run under the configured sandbox (spec
// §4.4's sandbox requirement); everything else (pure file edits, MCP
// round-trips that don't fork) skips sandbox establishment.
var sandboxedTools = map[string]bool{
	"bash": true,
}

// Gate is the concrete toolkit.PermissionChecker: it evaluates the rule
// set, enforces deny-read paths, establishes the sandbox for
// subprocess-launching tools, and parks anything left undecided as an
// AskUser request, per spec §4.4's decision procedure.
type Gate struct {
	Policy      ApprovalPolicy
	Sandbox     SandboxPolicy
	Rules       RuleSet
	Establisher Establisher

	cache *sessionCache

	mu      sync.Mutex
	pending map[string]pendingRequest
}

type pendingRequest struct {
	toolName string
	path     string
	hasPath  bool
}

func NewGate(policy ApprovalPolicy, sandbox SandboxPolicy, rules RuleSet, establisher Establisher) *Gate {
	if establisher == nil {
		establisher = NoopEstablisher{}
	}
	return &Gate{
		Policy:      policy,
		Sandbox:     sandbox,
		Rules:       rules,
		Establisher: establisher,
		cache:       newSessionCache(),
		pending:     make(map[string]pendingRequest),
	}
}

// effectivePolicy resolves the session policy and the tool's own declared
// default to whichever is stricter, ranking UnlessTrusted below OnRequest
// since UnlessTrusted still auto-allows ReadOnly calls that OnRequest would
// ask about.
func effectivePolicy(session ApprovalPolicy, toolDefault toolkit.ApprovalDefault) ApprovalPolicy {
	rank := func(p ApprovalPolicy) int {
		switch p {
		case Never:
			return 0
		case UnlessTrusted:
			return 1
		case OnRequest:
			return 2
		case Always:
			return 3
		default:
			return 2
		}
	}
	converted := convertDefault(toolDefault)
	if rank(converted) > rank(session) {
		return converted
	}
	return session
}

func convertDefault(d toolkit.ApprovalDefault) ApprovalPolicy {
	switch d {
	case toolkit.ApprovalNever:
		return Never
	case toolkit.ApprovalOnRequest:
		return OnRequest
	case toolkit.ApprovalUnlessTrusted:
		return UnlessTrusted
	case toolkit.ApprovalAlways:
		return Always
	default:
		return OnRequest
	}
}

func (g *Gate) CheckPermission(ctx context.Context, req toolkit.PermissionRequest) (toolkit.PermissionResult, error) {
	// A session-wide Never policy allows every call outright, whatever the
	// tool itself declares.
	if g.Policy == Never {
		return toolkit.PermissionResult{Decision: toolkit.PermissionAllow}, nil
	}
	effective := effectivePolicy(g.Policy, req.DefaultApproval)
	if effective == Never {
		return toolkit.PermissionResult{Decision: toolkit.PermissionAllow}, nil
	}

	pb, hasPath := pathBearingTools[req.ToolName]
	var path string
	if hasPath {
		if v, ok := extractStringField(req.Arguments, pb.field); ok {
			path = v
			if g.Sandbox.Kind == SandboxReadOnly {
				if err := CheckDenyRead(path, g.Sandbox.DenyReadPaths, pb.isSearchRoot); err != nil {
					return toolkit.PermissionResult{}, toolkit.NewToolErrorf(toolkit.ErrAccessDenied, "%v", err)
				}
			}
			if g.cache.isPathAllowed(req.ToolName, path) || g.cache.isDirAllowed(filepath.Dir(canonicalize(path))) {
				return toolkit.PermissionResult{Decision: toolkit.PermissionAllow}, nil
			}
		}
	}

	if sandboxedTools[req.ToolName] {
		teardown, err := g.Establisher.Establish(ctx, g.Sandbox)
		if err != nil {
			return toolkit.PermissionResult{}, toolkit.NewToolErrorf(toolkit.ErrSandboxSetupFailed, "%v", err)
		}
		// This gate only decides whether the call may proceed; the caller
		// (executor stage 3) owns the call's actual subprocess lifetime, so
		// there is nothing left for this teardown to guard once permission
		// is granted here.
		teardown()
	}

	if action, reason, matched := g.Rules.Evaluate(req.ToolName, req.Arguments); matched {
		switch action {
		case RuleAllow:
			return toolkit.PermissionResult{Decision: toolkit.PermissionAllow}, nil
		case RuleDeny:
			return toolkit.PermissionResult{Decision: toolkit.PermissionDenyOnce, Reason: reason}, nil
		}
		// RuleAsk falls through to the AskUser path below.
	}

	if effective == UnlessTrusted && req.ConcurrencySafety == toolkit.ReadOnly {
		return toolkit.PermissionResult{Decision: toolkit.PermissionAllow}, nil
	}

	requestID := uuid.NewString()
	g.mu.Lock()
	g.pending[requestID] = pendingRequest{toolName: req.ToolName, path: path, hasPath: hasPath}
	g.mu.Unlock()

	return toolkit.PermissionResult{Decision: toolkit.PermissionAskUser, RequestID: requestID}, nil
}

// Resolve records a human decision for a previously parked AskUser request.
// remember determines whether the decision is cached for the rest of the
// session so equivalent future calls auto-allow; it is ignored when allow
// is false, since the spec only ever remembers approvals, not denials.
func (g *Gate) Resolve(requestID string, allow bool, remember RememberScope) {
	g.mu.Lock()
	req, ok := g.pending[requestID]
	delete(g.pending, requestID)
	g.mu.Unlock()
	if !ok || !allow {
		return
	}

	switch remember {
	case RememberPath:
		if req.hasPath {
			g.cache.allowPath(req.toolName, req.path)
		}
	case RememberDirectory:
		if req.hasPath {
			g.cache.allowDir(filepath.Dir(canonicalize(req.path)))
		}
	}
}
