package protocol

// EventType describes a single streamed update from a provider backend.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolCall       EventType = "tool_call"
	EventToolExecStart  EventType = "tool_exec_start"
	EventToolExecEnd    EventType = "tool_exec_end"
	EventRetry          EventType = "retry"
	EventUsage          EventType = "usage"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event represents one streamed update produced by a Provider's Stream.
// Consumers correlate ToolExecStart/ToolExecEnd pairs by ToolCallID, since
// parallel tool execution delivers them out of request order.
type Event struct {
	Type EventType

	Text string

	Tool       *ToolCall
	ToolCallID string
	ToolName   string
	ToolInfo   string
	ToolOutput string
	ToolSuccess bool

	Use *Usage

	RetryAttempt     int
	RetryMaxAttempts int
	RetryWaitSecs    float64

	Err error
}

// Usage captures token accounting for a single provider turn. CachedInput
// and CacheWrite are zero on providers without prompt caching.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CachedInputTokens int
	CacheWriteTokens  int
}

// Add accumulates u2 into u, used by the turn engine's per-stream usage
// accumulator to produce one usage record per turn regardless of how many
// Usage events the backend emitted along the way.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.CachedInputTokens += u2.CachedInputTokens
	u.CacheWriteTokens += u2.CacheWriteTokens
}
