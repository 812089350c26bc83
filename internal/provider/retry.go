package provider

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/turnforge/agentcore/internal/protocol"
)

// RetryConfig configures automatic retry of transient stream failures.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns the module's default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// retryProvider wraps a Provider with automatic retry on ErrorRetryable and
// short-wait ErrorRateLimited failures.
type retryProvider struct {
	inner  Provider
	config RetryConfig
}

// WrapWithRetry wraps p so that Retryable and short-wait RateLimited errors
// are retried transparently with exponential backoff and jitter, emitting
// an EventRetry so the caller can surface retry progress.
func WrapWithRetry(p Provider, config RetryConfig) Provider {
	return &retryProvider{inner: p, config: config}
}

func (r *retryProvider) Name() string                 { return r.inner.Name() }
func (r *retryProvider) Model() string                { return r.inner.Model() }
func (r *retryProvider) Capabilities() Capabilities    { return r.inner.Capabilities() }

func (r *retryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- protocol.Event) error {
		var lastErr error

		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			stream, err := r.inner.Stream(ctx, req)
			if err != nil {
				if !r.retryable(err) {
					return err
				}
				lastErr = err
			} else {
				err = r.forward(ctx, stream, events)
				if err == nil {
					return nil
				}
				if !r.retryable(err) {
					return err
				}
				lastErr = err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.config.MaxAttempts {
				break
			}

			wait := r.backoff(attempt, lastErr)
			events <- protocol.Event{
				Type:             protocol.EventRetry,
				RetryAttempt:     attempt,
				RetryMaxAttempts: r.config.MaxAttempts,
				RetryWaitSecs:    wait.Seconds(),
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		return lastErr
	}), nil
}

func (r *retryProvider) forward(ctx context.Context, stream Stream, events chan<- protocol.Event) error {
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if event.Type == protocol.EventError && event.Err != nil {
			return event.Err
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *retryProvider) retryable(err error) bool {
	ce := Classify(err, 0)
	if ce == nil {
		return false
	}
	switch ce.Kind {
	case ErrorRetryable:
		return true
	case ErrorRateLimited:
		return !ce.IsLongWait()
	default:
		return false
	}
}

func (r *retryProvider) backoff(attempt int, err error) time.Duration {
	if ce := Classify(err, 0); ce != nil && ce.RetryAfter > 0 {
		wait := ce.RetryAfter
		if wait > r.config.MaxBackoff {
			wait = r.config.MaxBackoff
		}
		return wait
	}

	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))
	jitter := (rand.Float64() - 0.5) * 0.5 * backoff
	backoff += jitter
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
