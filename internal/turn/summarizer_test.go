package turn

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/turnforge/agentcore/internal/budget"
	"github.com/turnforge/agentcore/internal/protocol"
	"github.com/turnforge/agentcore/internal/provider"
)

type fakeSummaryStream struct {
	events []protocol.Event
	i      int
}

func (s *fakeSummaryStream) Recv() (protocol.Event, error) {
	if s.i >= len(s.events) {
		return protocol.Event{}, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}
func (s *fakeSummaryStream) Close() error { return nil }

type fakeSummaryProvider struct {
	events []protocol.Event
	err    error
}

func (p *fakeSummaryProvider) Name() string                           { return "fake" }
func (p *fakeSummaryProvider) Model() string                          { return "fake-model" }
func (p *fakeSummaryProvider) Capabilities() provider.Capabilities    { return provider.Capabilities{} }
func (p *fakeSummaryProvider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &fakeSummaryStream{events: p.events}, nil
}

func TestProviderSummarizer_CollectsTextDeltas(t *testing.T) {
	prov := &fakeSummaryProvider{events: []protocol.Event{
		{Type: protocol.EventTextDelta, Text: "section one "},
		{Type: protocol.EventTextDelta, Text: "section two"},
		{Type: protocol.EventDone},
	}}
	s := &ProviderSummarizer{Provider: prov, Model: "fake-model"}

	text, err := s.Summarize(context.Background(), budget.SummaryRequest{Prompt: "summarize this"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if text != "section one section two" {
		t.Fatalf("expected collected text, got %q", text)
	}
}

func TestProviderSummarizer_ContextOverflowWrapsSentinel(t *testing.T) {
	prov := &fakeSummaryProvider{err: errors.New("context_length_exceeded: too much")}
	s := &ProviderSummarizer{Provider: prov}

	_, err := s.Summarize(context.Background(), budget.SummaryRequest{Prompt: "x"})
	if !errors.Is(err, budget.ErrSummaryRequestTooLarge) {
		t.Fatalf("expected ErrSummaryRequestTooLarge, got %v", err)
	}
}

func TestProviderSummarizer_NoProviderConfiguredErrors(t *testing.T) {
	s := &ProviderSummarizer{}
	_, err := s.Summarize(context.Background(), budget.SummaryRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected an error with no provider configured")
	}
}
