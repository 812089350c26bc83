package provider

import (
	"context"
	"io"
	"sync"

	"github.com/turnforge/agentcore/internal/protocol"
)

// runFunc produces events onto the given channel until the backend's
// request is exhausted, returning any terminal error.
type runFunc func(ctx context.Context, events chan<- protocol.Event) error

// eventStream adapts a goroutine-driven producer into the blocking Recv/
// Close Stream interface every backend returns from Stream(). Every backend
// in this package is built the same way: a single goroutine translates
// provider-native stream events into protocol.Event and sends them on a
// channel; eventStream is the one place that plumbing lives.
type eventStream struct {
	events chan protocol.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	runErr    error
	closeOnce sync.Once
}

// newEventStream starts fn in a goroutine and returns a Stream that drains
// its events. fn's ctx is cancelled when Close is called, so a consumer
// that stops reading mid-stream (turn cancellation) terminates the
// in-flight HTTP request promptly instead of leaking it.
func newEventStream(ctx context.Context, fn runFunc) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan protocol.Event, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		err := fn(ctx, s.events)
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
	}()

	return s
}

func (s *eventStream) Recv() (protocol.Event, error) {
	event, ok := <-s.events
	if !ok {
		<-s.done
		s.mu.Lock()
		err := s.runErr
		s.mu.Unlock()
		if err != nil {
			return protocol.Event{}, err
		}
		return protocol.Event{}, io.EOF
	}
	if event.Type == protocol.EventDone {
		return event, nil
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	// Drain what the producer still sends so it can observe the cancellation
	// instead of blocking forever on a full channel.
	for range s.events {
	}
	<-s.done
	return nil
}
