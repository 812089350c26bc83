package provider

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a provider error for the turn engine's recovery
// logic: Retryable errors get exponential backoff, RateLimited errors
// additionally respect a server-provided wait, ContextWindowExceeded
// triggers compaction, QuotaExceeded aborts with no retry (the account is
// out of budget, retrying cannot help), Api surfaces to the user verbatim,
// and Invalid indicates a malformed request that retrying would repeat.
type ErrorKind string

const (
	ErrorRetryable            ErrorKind = "retryable"
	ErrorRateLimited          ErrorKind = "rate_limited"
	ErrorContextWindowExceeded ErrorKind = "context_window_exceeded"
	ErrorQuotaExceeded        ErrorKind = "quota_exceeded"
	ErrorAPI                  ErrorKind = "api"
	ErrorInvalid              ErrorKind = "invalid"
)

// ClassifiedError wraps a backend error with its recovery classification.
type ClassifiedError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// IsLongWait reports whether the server-requested backoff is long enough
// that an automatic retry isn't worth attempting (the turn engine surfaces
// the wait to the caller instead of blocking on it).
func (e *ClassifiedError) IsLongWait() bool {
	return e.RetryAfter > 60*time.Second
}

var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// Classify inspects err (and, where the backend exposes one, an HTTP status
// code) and returns a ClassifiedError. Backends call this from their Stream
// implementation so the turn engine's retry/compaction/fallback logic stays
// provider-agnostic.
func Classify(err error, statusCode int) *ClassifiedError {
	if err == nil {
		return nil
	}

	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	lower := strings.ToLower(err.Error())
	retryAfter := parseRetryAfter(lower)

	switch {
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return &ClassifiedError{Kind: ErrorRateLimited, RetryAfter: retryAfter, Err: err}

	case statusCode == 402 || statusCode == 403 && strings.Contains(lower, "quota"):
		return &ClassifiedError{Kind: ErrorQuotaExceeded, Err: err}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "billing"):
		return &ClassifiedError{Kind: ErrorQuotaExceeded, Err: err}

	case strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "input length") && strings.Contains(lower, "exceeds"):
		return &ClassifiedError{Kind: ErrorContextWindowExceeded, Err: err}

	case statusCode == 500 || statusCode == 502 || statusCode == 503 || statusCode == 529 ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "no such host"):
		return &ClassifiedError{Kind: ErrorRetryable, RetryAfter: retryAfter, Err: err}

	case statusCode == 400 || statusCode == 422 ||
		strings.Contains(lower, "invalid_request") ||
		strings.Contains(lower, "invalid request"):
		return &ClassifiedError{Kind: ErrorInvalid, Err: err}

	default:
		return &ClassifiedError{Kind: ErrorAPI, Err: err}
	}
}

func parseRetryAfter(lowerMsg string) time.Duration {
	matches := retryAfterRegex.FindStringSubmatch(lowerMsg)
	if len(matches) < 2 {
		return 0
	}
	secs, err := strconv.Atoi(matches[1])
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
