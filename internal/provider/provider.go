// Package provider abstracts over the wire formats of the model backends
// agentcore talks to (Anthropic, OpenAI, Gemini, Bedrock-hosted Claude)
// behind one generate/stream interface speaking protocol.Message and
// protocol.Event.
package provider

import (
	"context"

	"github.com/turnforge/agentcore/internal/protocol"
)

// Capabilities describes the optional features a backend supports, used by
// the turn engine to decide request shape (e.g. whether parallel tool calls
// can be requested, whether native web search can replace the web_search
// tool).
type Capabilities struct {
	ToolCalls                 bool
	ParallelToolCalls         bool
	NativeWebSearch           bool
	ReasoningSummaries        bool
	PromptCaching             bool
}

// Request represents a single model turn handed to a Provider.
type Request struct {
	Model             string
	System            string
	Messages          []protocol.Message
	Tools             []protocol.ToolSpec
	ToolChoice        protocol.ToolChoice
	ParallelToolCalls bool
	Thinking          protocol.ThinkingLevel
	MaxOutputTokens   int
	Temperature       float32
	TopP              float32

	Debug    bool
	DebugRaw bool
}

// Stream yields Events until io.EOF.
type Stream interface {
	Recv() (protocol.Event, error)
	Close() error
}

// Provider generates/streams model output for a Request. Every backend
// (Anthropic, OpenAI, Gemini, Bedrock) implements this single interface; the
// turn engine never branches on provider identity itself.
type Provider interface {
	Name() string
	Model() string
	Capabilities() Capabilities
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ModelInfoProvider is an optional interface for backends that can report
// static capability/limit metadata for their configured model, consulted by
// the Context Budget component.
type ModelInfoProvider interface {
	ModelInfo() protocol.ModelInfo
}
