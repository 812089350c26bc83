package turn

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/turnforge/agentcore/internal/budget"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
)

// ProviderSummarizer implements budget.Summarizer as a single non-tool
// completion through the turn engine's active provider, grounded on the
// teacher's Compact (internal/llm/compact.go — superseded here by
// internal/budget, see that package's doc comment) which likewise issues
// the summarization request through the same Provider a turn uses rather
// than a dedicated summarization backend.
type ProviderSummarizer struct {
	Provider provider.Provider
	Model    string
	// MaxOutputTokens bounds the summary's own length; spec §4.5 doesn't
	// mandate a specific cap, so this defaults to a generous budget that
	// still leaves room under typical context windows.
	MaxOutputTokens int
}

const defaultSummaryMaxOutputTokens = 2000

// Summarize issues req.Prompt as a single user message with no tools and
// collects the resulting text. A ContextWindowExceeded classification on
// the underlying error is rewrapped as budget.ErrSummaryRequestTooLarge so
// Compact's non-recursive K-reduction retry can recognize it.
func (s *ProviderSummarizer) Summarize(ctx context.Context, req budget.SummaryRequest) (string, error) {
	if s.Provider == nil {
		return "", errors.New("turn: ProviderSummarizer has no provider configured")
	}
	maxOut := s.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = defaultSummaryMaxOutputTokens
	}

	stream, err := s.Provider.Stream(ctx, provider.Request{
		Model:           s.Model,
		Messages:        []protocol.Message{protocol.UserText(req.Prompt)},
		ToolChoice:      protocol.ToolChoice{Mode: protocol.ToolChoiceNone},
		MaxOutputTokens: maxOut,
	})
	if err != nil {
		return "", classifySummaryError(err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", classifySummaryError(err)
		}
		if event.Type == protocol.EventError && event.Err != nil {
			return "", classifySummaryError(event.Err)
		}
		if event.Type == protocol.EventTextDelta {
			sb.WriteString(event.Text)
		}
		if event.Type == protocol.EventDone {
			break
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("turn: summarization produced no text")
	}
	return sb.String(), nil
}

func classifySummaryError(err error) error {
	classified := provider.Classify(err, 0)
	if classified != nil && classified.Kind == provider.ErrorContextWindowExceeded {
		return errors.Join(budget.ErrSummaryRequestTooLarge, err)
	}
	return err
}
