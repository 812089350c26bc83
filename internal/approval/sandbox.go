package approval

import "context"

// ErrSandboxSetupFailed aborts a Mutating/Exclusive subprocess-launching
// call when the configured sandbox mechanism can't be established (spec
// §4.4/§7). The mechanism itself is external (container, seccomp profile,
// landlock, etc.) — Establisher is the seam a concrete sandboxing backend
// implements.
type ErrSandboxSetupFailed struct {
	Reason string
}

func (e *ErrSandboxSetupFailed) Error() string {
	return "sandbox setup failed: " + e.Reason
}

// Establisher prepares (and tears down) the sandbox a subprocess-launching
// tool call runs under. No concrete OS-level sandbox backend ships in this
// module — the spec treats the mechanism as external — so NoopEstablisher
// is the default, and a real backend (container runtime, landlock, seccomp)
// plugs in here without the gate needing to change.
type Establisher interface {
	// Establish prepares the sandbox for one call and returns a teardown
	// function to run once the call finishes, regardless of outcome.
	Establish(ctx context.Context, policy SandboxPolicy) (teardown func(), err error)
}

// NoopEstablisher enforces nothing; used when SandboxPolicy is
// DangerFullAccess, or in development/test environments that have no
// sandboxing backend configured.
type NoopEstablisher struct{}

func (NoopEstablisher) Establish(ctx context.Context, policy SandboxPolicy) (func(), error) {
	return func() {}, nil
}
