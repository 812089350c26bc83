package turn

import "github.com/turnforge/agentcore/internal/provider"

// FallbackChain advances through a configured list of providers when the
// active one exhausts retries or reports QuotaExceeded, per spec §4.8 step
// 5: "QuotaExceeded or repeated retryable exhaustion with FallbackConfig
// enabled: advance FallbackState; switch model; retry with sanitized
// history for the new provider." A nil or single-element chain disables
// fallback (Advance always reports no next provider).
type FallbackChain struct {
	providers []provider.Provider
	index     int
}

// NewFallbackChain builds a chain starting at its first provider. An empty
// chain is valid and simply never advances.
func NewFallbackChain(providers ...provider.Provider) *FallbackChain {
	return &FallbackChain{providers: providers}
}

// Current returns the active provider, or nil if the chain is empty.
func (f *FallbackChain) Current() provider.Provider {
	if f == nil || f.index >= len(f.providers) {
		return nil
	}
	return f.providers[f.index]
}

// Advance moves to the next configured provider and returns it, or
// (nil, false) once the chain is exhausted.
func (f *FallbackChain) Advance() (provider.Provider, bool) {
	if f == nil || f.index+1 >= len(f.providers) {
		return nil, false
	}
	f.index++
	return f.providers[f.index], true
}

// Reset returns the chain to its first provider. Engine.RunTurn does not
// call it, so a chain advanced during one turn stays advanced for later
// turns until a caller resets it.
func (f *FallbackChain) Reset() {
	if f != nil {
		f.index = 0
	}
}
